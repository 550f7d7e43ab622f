// Package cli provides the hestia command-line interface.
//
// The CLI is built on the Orpheus framework and exposes the library's
// settings files, number conversions, file watcher and audit trail:
//
//	hestia settings get app.conf port --type=int
//	hestia settings convert app.conf app.yaml
//	hestia number hex 255 --digits=4
//	hestia watch app.conf --interval=1s
//	hestia audit query audit.db --event=setting_changed
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"io"
	"os"

	"github.com/agilira/hestia"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version is reported by the info command and --version.
const Version = "1.0.0"

// Manager routes hestia commands. Output goes to the configured writer so
// commands can be tested without touching stdout.
type Manager struct {
	app         *orpheus.App
	out         io.Writer
	ctx         context.Context
	auditLogger *hestia.AuditLogger // optional
}

// NewManager creates the CLI with all command groups registered.
func NewManager() *Manager {
	app := orpheus.New("hestia").
		SetDescription("Settings files, number formatting and file watching").
		SetVersion(Version)

	manager := &Manager{
		app: app,
		out: os.Stdout,
		ctx: context.Background(),
	}

	manager.setupSettingsCommands()
	manager.setupNumberCommands()
	manager.setupWatchCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit records settings changes made by CLI commands.
func (m *Manager) WithAudit(auditLogger *hestia.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// WithOutput redirects command output.
func (m *Manager) WithOutput(w io.Writer) *Manager {
	m.out = w
	return m
}

// WithContext sets the context that ends long-running commands such as
// watch.
func (m *Manager) WithContext(ctx context.Context) *Manager {
	m.ctx = ctx
	return m
}

// Run executes the command line, without the program name.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupSettingsCommands registers the 'settings' group: get, set, delete,
// list and convert.
func (m *Manager) setupSettingsCommands() {
	settingsCmd := orpheus.NewCommand("settings", "Settings file operations")

	// settings get <file> <key> [--type=string]
	getCmd := settingsCmd.Subcommand("get", "Print a settings value", m.handleSettingsGet)
	getCmd.AddFlag("type", "t", "string", "Value type (string|int|uint|float|bool)")
	getCmd.AddFlag("format", "f", "auto", "File format (auto|kv|yaml|json)")

	// settings set <file> <key> <value>
	setCmd := settingsCmd.Subcommand("set", "Store a settings value", m.handleSettingsSet)
	setCmd.AddFlag("format", "f", "auto", "File format (auto|kv|yaml|json)")

	// settings delete <file> <key>
	deleteCmd := settingsCmd.Subcommand("delete", "Remove a settings key", m.handleSettingsDelete)
	deleteCmd.AddFlag("format", "f", "auto", "File format (auto|kv|yaml|json)")

	// settings list <file> [--prefix=]
	listCmd := settingsCmd.Subcommand("list", "List settings keys and values", m.handleSettingsList)
	listCmd.AddFlag("prefix", "p", "", "Key prefix filter")
	listCmd.AddFlag("format", "f", "auto", "File format (auto|kv|yaml|json)")

	// settings convert <input> <output> [--from=auto] [--to=auto]
	convertCmd := settingsCmd.Subcommand("convert", "Convert a settings file between formats", m.handleSettingsConvert)
	convertCmd.AddFlag("from", "", "auto", "Input format (auto|kv|yaml|json)")
	convertCmd.AddFlag("to", "", "auto", "Output format (auto|kv|yaml|json)")

	m.app.AddCommand(settingsCmd)
}

// setupNumberCommands registers radix formatting and number classification.
func (m *Manager) setupNumberCommands() {
	numberCmd := orpheus.NewCommand("number", "Number formatting and parsing")

	hexCmd := numberCmd.Subcommand("hex", "Format an unsigned integer as hex", m.handleNumberHex)
	hexCmd.AddIntFlag("digits", "d", 0, "Minimum number of digits")

	octCmd := numberCmd.Subcommand("oct", "Format an unsigned integer as octal", m.handleNumberOct)
	octCmd.AddIntFlag("digits", "d", 0, "Minimum number of digits")

	binCmd := numberCmd.Subcommand("bin", "Format an unsigned integer as binary", m.handleNumberBin)
	binCmd.AddIntFlag("digits", "d", 0, "Minimum number of digits")

	numberCmd.Subcommand("parse", "Classify and parse a number", m.handleNumberParse)

	m.app.AddCommand(numberCmd)
}

// setupWatchCommands registers 'watch', which reloads a settings file on
// change and prints every key that changed.
func (m *Manager) setupWatchCommands() {
	watchCmd := orpheus.NewCommand("watch", "Watch a settings file and print changes")
	watchCmd.SetHandler(m.handleWatch)
	watchCmd.AddFlag("interval", "i", "1s", "Polling interval")
	watchCmd.AddFlag("format", "f", "auto", "File format (auto|kv|yaml|json)")

	m.app.AddCommand(watchCmd)
}

// setupUtilityCommands registers audit queries and info.
func (m *Manager) setupUtilityCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail inspection")

	queryCmd := auditCmd.Subcommand("query", "Query an audit database", m.handleAuditQuery)
	queryCmd.AddFlag("event", "e", "", "Event type filter")
	queryCmd.AddFlag("key", "k", "", "Settings key filter")
	queryCmd.AddFlag("since", "s", "", "Only events newer than this (e.g. 24h, 7d)")
	queryCmd.AddIntFlag("limit", "l", 100, "Maximum results")

	auditCmd.Subcommand("stats", "Show audit database statistics", m.handleAuditStats)

	m.app.AddCommand(auditCmd)

	infoCmd := orpheus.NewCommand("info", "Version and build information")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Verbose information")
	m.app.AddCommand(infoCmd)
}
