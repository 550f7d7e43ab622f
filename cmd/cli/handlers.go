// Command handlers for the hestia CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// handleSettingsGet prints one value, optionally converted to --type.
func (m *Manager) handleSettingsGet(ctx *orpheus.Context) error {
	filePath, key := ctx.GetArg(0), ctx.GetArg(1)
	if err := requireArgs([]string{filePath, key}, "file", "key"); err != nil {
		return err
	}

	sm, err := m.openSettings(filePath, ctx.GetFlagString("format"), true)
	if err != nil {
		return err
	}

	var value any
	switch typ := ctx.GetFlagString("type"); typ {
	case "", "string":
		value, err = sm.Get(key)
	case "int":
		value, err = hestia.GetAs[int64](sm, key)
	case "uint":
		value, err = hestia.GetAs[uint64](sm, key)
	case "float":
		value, err = hestia.GetAs[float64](sm, key)
	case "bool":
		value, err = hestia.GetAs[bool](sm, key)
	default:
		return errors.New(hestia.ErrCodeInvalidConfig, "unsupported type").
			WithContext("type", typ)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(m.out, hestia.MustRender(value))
	return nil
}

// handleSettingsSet stores a value and writes the file atomically. The
// file is created when missing.
func (m *Manager) handleSettingsSet(ctx *orpheus.Context) error {
	filePath, key, value := ctx.GetArg(0), ctx.GetArg(1), ctx.GetArg(2)
	if err := requireArgs([]string{filePath, key, value}, "file", "key", "value"); err != nil {
		return err
	}
	if err := checkFileWriteable(filePath); err != nil {
		return err
	}

	sm, err := m.openSettings(filePath, ctx.GetFlagString("format"), false)
	if err != nil {
		return err
	}
	if err := sm.Set(key, value); err != nil {
		return err
	}
	if err := sm.WriteToFile(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Set %s = %s in %s\n", key, value, filePath)
	return nil
}

// handleSettingsDelete removes a key and rewrites the file.
func (m *Manager) handleSettingsDelete(ctx *orpheus.Context) error {
	filePath, key := ctx.GetArg(0), ctx.GetArg(1)
	if err := requireArgs([]string{filePath, key}, "file", "key"); err != nil {
		return err
	}

	sm, err := m.openSettings(filePath, ctx.GetFlagString("format"), true)
	if err != nil {
		return err
	}
	if !sm.Erase(key) {
		return errors.New(hestia.ErrCodeKeyNotFound, "key not found").
			WithContext("key", key).
			WithContext("path", filePath)
	}
	if err := sm.WriteToFile(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Deleted %s from %s\n", key, filePath)
	return nil
}

// handleSettingsList prints "key = value" lines in key order.
func (m *Manager) handleSettingsList(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if err := requireArgs([]string{filePath}, "file"); err != nil {
		return err
	}
	prefix := ctx.GetFlagString("prefix")

	sm, err := m.openSettings(filePath, ctx.GetFlagString("format"), true)
	if err != nil {
		return err
	}

	values := sm.Map()
	var keys []string
	for _, key := range sm.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		if prefix != "" {
			fmt.Fprintf(m.out, "No keys found with prefix '%s'\n", prefix)
		} else {
			fmt.Fprintln(m.out, "No settings found")
		}
		return nil
	}

	fmt.Fprintf(m.out, "Settings in %s:\n", filePath)
	for _, key := range keys {
		fmt.Fprintf(m.out, "  %s = %s\n", key, values[key])
	}
	return nil
}

// handleSettingsConvert rewrites a settings file in another format.
func (m *Manager) handleSettingsConvert(ctx *orpheus.Context) error {
	inputPath, outputPath := ctx.GetArg(0), ctx.GetArg(1)
	if err := requireArgs([]string{inputPath, outputPath}, "input", "output"); err != nil {
		return err
	}

	from, err := resolveFormat(inputPath, ctx.GetFlagString("from"))
	if err != nil {
		return err
	}
	to, err := resolveFormat(outputPath, ctx.GetFlagString("to"))
	if err != nil {
		return err
	}
	if err := hestia.ValidateSecurePath(inputPath); err != nil {
		return err
	}

	values, err := hestia.LoadSettingsFile(inputPath, from)
	if err != nil {
		return err
	}
	if err := checkFileWriteable(outputPath); err != nil {
		return err
	}
	if err := hestia.SaveSettingsFile(outputPath, to, values); err != nil {
		return err
	}
	m.auditLogger.LogSettingsFile("converted", outputPath, len(values))

	fmt.Fprintf(m.out, "Converted %s (%s) -> %s (%s)\n", inputPath, from, outputPath, to)
	return nil
}

func (m *Manager) handleNumberHex(ctx *orpheus.Context) error {
	return m.formatNumber(ctx, hestia.ToHexString[uint64])
}

func (m *Manager) handleNumberOct(ctx *orpheus.Context) error {
	return m.formatNumber(ctx, hestia.ToOctString[uint64])
}

func (m *Manager) handleNumberBin(ctx *orpheus.Context) error {
	return m.formatNumber(ctx, hestia.ToBinString[uint64])
}

// formatNumber parses a decimal or prefixed unsigned value and prints it
// in the radix chosen by format.
func (m *Manager) formatNumber(ctx *orpheus.Context, format func(uint64, ...int) string) error {
	text := ctx.GetArg(0)
	if err := requireArgs([]string{text}, "value"); err != nil {
		return err
	}
	v, _, err := parseUnsigned(text)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, format(v, max(ctx.GetFlagInt("digits"), 0)))
	return nil
}

// handleNumberParse reports how a piece of text is interpreted.
func (m *Manager) handleNumberParse(ctx *orpheus.Context) error {
	text := ctx.GetArg(0)
	if err := requireArgs([]string{text}, "text"); err != nil {
		return err
	}

	if v, kind, err := parseUnsigned(text); err == nil && kind != "decimal" {
		fmt.Fprintf(m.out, "%s: %d\n", kind, v)
		return nil
	}
	switch {
	case hestia.IsInt(text):
		v, err := hestia.Parse[int64](strings.TrimSpace(text))
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "int: %s\n", hestia.MustRender(v))
	case hestia.IsFloat(text):
		fmt.Fprintf(m.out, "float: %s\n", hestia.MustRender(hestia.DoubleOr(text, 0)))
	default:
		return errors.New(hestia.ErrCodeConversionFailed, "not a number").
			WithContext("text", text)
	}
	return nil
}

// parseUnsigned accepts 0x, 0b and 0o prefixed values as well as plain
// decimals. kind names the notation that matched.
func parseUnsigned(text string) (uint64, string, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(t, "0x"):
		v, err := hestia.FromHexString[uint64](t)
		return v, "hex", err
	case strings.HasPrefix(t, "0b"):
		v, err := hestia.FromBinString[uint64](t)
		return v, "bin", err
	case strings.HasPrefix(t, "0o"):
		v, err := hestia.FromOctString[uint64](t)
		return v, "oct", err
	}
	v, err := hestia.Parse[uint64](t)
	return v, "decimal", err
}

// handleWatch reloads the file on every change and prints added or changed
// keys until the manager's context is done.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if err := requireArgs([]string{filePath}, "file"); err != nil {
		return err
	}
	interval, err := parseExtendedDuration(ctx.GetFlagString("interval"))
	if err != nil {
		return err
	}

	sm, err := m.openSettings(filePath, ctx.GetFlagString("format"), true)
	if err != nil {
		return err
	}

	w, err := hestia.NewWatcher(hestia.WatcherConfig{
		PollInterval: interval,
		Audit:        m.auditLogger,
		ErrorHandler: func(err error, path string) {
			fmt.Fprintf(m.out, "Error watching %s: %v\n", path, err)
		},
	})
	if err != nil {
		return err
	}

	previous := sm.Map()
	err = w.Watch(filePath, func(event hestia.ChangeEvent) {
		if event.IsDelete {
			fmt.Fprintf(m.out, "File deleted: %s\n", event.Path)
			return
		}
		if err := sm.ReadFromFile(false); err != nil {
			fmt.Fprintf(m.out, "Reload failed: %v\n", err)
			return
		}
		current := sm.Map()
		for _, line := range diffSettings(previous, current) {
			fmt.Fprintln(m.out, line)
		}
		previous = current
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Watching %s (interval: %v)\n", filePath, interval)
	<-m.ctx.Done()
	return w.Close()
}

// diffSettings lists changed and added keys in key order.
func diffSettings(before, after map[string]string) []string {
	keys := make([]string, 0, len(after))
	for k := range after {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		old, existed := before[k]
		switch {
		case !existed:
			lines = append(lines, fmt.Sprintf("+ %s = %s", k, after[k]))
		case old != after[k]:
			lines = append(lines, fmt.Sprintf("~ %s = %s (was %s)", k, after[k], old))
		}
	}
	return lines
}

// openAudit returns the manager's audit logger, or opens the database
// named on the command line.
func (m *Manager) openAudit(dbPath string) (*hestia.AuditLogger, func(), error) {
	if dbPath == "" {
		if m.auditLogger == nil {
			return nil, nil, errors.New(hestia.ErrCodeInvalidConfig, "no audit database given")
		}
		return m.auditLogger, func() {}, nil
	}
	if err := hestia.ValidateSecurePath(dbPath); err != nil {
		return nil, nil, err
	}
	if err := requireExisting(dbPath); err != nil {
		return nil, nil, err
	}
	cfg := hestia.DefaultAuditConfig()
	cfg.OutputFile = dbPath
	al, err := hestia.NewAuditLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return al, func() { _ = al.Close() }, nil
}

// handleAuditQuery prints matching audit events, newest first.
func (m *Manager) handleAuditQuery(ctx *orpheus.Context) error {
	al, closeFn, err := m.openAudit(ctx.GetArg(0))
	if err != nil {
		return err
	}
	defer closeFn()

	filter := hestia.AuditFilter{
		Event: ctx.GetFlagString("event"),
		Key:   ctx.GetFlagString("key"),
		Limit: ctx.GetFlagInt("limit"),
	}
	if since := ctx.GetFlagString("since"); since != "" {
		d, err := parseExtendedDuration(since)
		if err != nil {
			return err
		}
		filter.Since = time.Now().Add(-d)
	}

	events, err := al.Query(filter)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(m.out, "No audit events found")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%s %-8s %s", e.Timestamp.Format(hestia.LogTimeLayout), e.Level, e.Event)
		if e.Key != "" {
			line += " key=" + e.Key
		}
		if e.FilePath != "" {
			line += " file=" + e.FilePath
		}
		if e.NewValue != nil {
			line += " value=" + hestia.ToString(e.NewValue)
		}
		fmt.Fprintln(m.out, line)
	}
	return nil
}

// handleAuditStats prints event counts of an audit database.
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	al, closeFn, err := m.openAudit(ctx.GetArg(0))
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := al.GetStats()
	if err != nil {
		return err
	}
	if stats == nil {
		fmt.Fprintln(m.out, "Audit logging disabled")
		return nil
	}
	fmt.Fprintf(m.out, "Total events: %d\n", stats.TotalEvents)
	levels := make([]string, 0, len(stats.EventsByLevel))
	for level := range stats.EventsByLevel {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		fmt.Fprintf(m.out, "  %s: %d\n", level, stats.EventsByLevel[level])
	}
	return nil
}

// handleInfo prints version information.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	fmt.Fprintf(m.out, "hestia %s\n", Version)
	fmt.Fprintln(m.out, "Settings formats: kv, yaml, json")

	if ctx.GetFlagBool("verbose") {
		fmt.Fprintf(m.out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(m.out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(m.out, "Audit logging: %v\n", m.auditLogger != nil)
	}
	return nil
}
