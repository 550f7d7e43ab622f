// settings_flags.go: Command-line overlay for settings via flash-flags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"sort"
	"strings"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

// ErrHelpRequested is returned by FlagOverlay.Parse when -h or --help is
// among the arguments. Nothing is applied in that case.
var ErrHelpRequested = errors.New(ErrCodeInvalidConfig, "help requested")

// FlagOverlay exposes every key of a settings store as a command-line
// flag. Key "server.port" becomes --server-port; flash-flags also reads
// APPNAME_SERVER_PORT from the environment.
type FlagOverlay struct {
	sm      *SettingsManager
	flags   *flashflags.FlagSet
	appName string
	keys    map[string]string // flag name -> settings key
}

// NewFlagOverlay registers a string flag for each key currently in sm,
// defaulting to the stored value. Keys added to sm later are not covered.
func NewFlagOverlay(sm *SettingsManager, appName string) *FlagOverlay {
	fo := &FlagOverlay{
		sm:      sm,
		flags:   flashflags.New(appName),
		appName: appName,
		keys:    make(map[string]string),
	}
	values := sm.Map()
	for _, key := range sm.Keys() {
		name := keyToFlagName(key)
		if _, dup := fo.keys[name]; dup {
			continue
		}
		fo.keys[name] = key
		usage := "settings key " + key
		if av, ok := sm.AllowedValuesFor(key); ok {
			usage += " (" + av.String() + ")"
		}
		fo.flags.String(name, values[key], usage)
	}
	fo.flags.SetEnvPrefix(strings.ToUpper(appName))
	return fo
}

// SetDescription sets the description shown by PrintUsage.
func (fo *FlagOverlay) SetDescription(description string) *FlagOverlay {
	fo.flags.SetDescription(description)
	return fo
}

// SetVersion sets the version shown by PrintUsage.
func (fo *FlagOverlay) SetVersion(version string) *FlagOverlay {
	fo.flags.SetVersion(version)
	return fo
}

// Parse parses args and applies every flag whose value differs from the
// store through Set, in key order. The first Set error is returned after
// all flags were tried.
func (fo *FlagOverlay) Parse(args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return ErrHelpRequested
		}
	}
	if err := fo.flags.Parse(args); err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse command-line flags")
	}

	names := make([]string, 0, len(fo.keys))
	for name := range fo.keys {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		key := fo.keys[name]
		value := fo.flags.GetString(name)
		if cur, err := fo.sm.Get(key); err == nil && cur == value {
			continue
		}
		if err := fo.sm.Set(key, value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BoundFlags maps each flag name to its settings key.
func (fo *FlagOverlay) BoundFlags() map[string]string {
	out := make(map[string]string, len(fo.keys))
	fo.flags.VisitAll(func(flag *flashflags.Flag) {
		if key, ok := fo.keys[flag.Name()]; ok {
			out[flag.Name()] = key
		}
	})
	return out
}

// FlagToEnvKey returns the environment variable flash-flags consults for
// a flag, e.g. "server-port" in app "svc" is SVC_SERVER_PORT.
func (fo *FlagOverlay) FlagToEnvKey(flagName string) string {
	return strings.ToUpper(fo.appName + "_" + strings.ReplaceAll(flagName, "-", "_"))
}

// PrintUsage prints help for all flags.
func (fo *FlagOverlay) PrintUsage() {
	fo.flags.PrintHelp()
}

func keyToFlagName(key string) string {
	return strings.ReplaceAll(key, ".", "-")
}
