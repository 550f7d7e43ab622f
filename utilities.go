// utilities.go: Convenience watchers over settings files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"os"

	"github.com/agilira/go-errors"
)

// AuditSettingsReloaded is recorded by SettingsFileWatcher on every
// successful reload.
const AuditSettingsReloaded = "settings_reloaded"

// SettingsFileWatcher watches a settings file in any supported format and
// hands the decoded key/value map to callback, once at start when the file
// exists and again after each change. Decode errors go to the error
// handler and the callback is skipped.
//
//	w, err := hestia.SettingsFileWatcher("app.yaml", func(values map[string]string) {
//	    level := values["log.level"]
//	    ...
//	}, hestia.WatcherConfig{})
func SettingsFileWatcher(path string, callback func(values map[string]string), cfg WatcherConfig) (*Watcher, error) {
	if callback == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "callback cannot be nil")
	}
	format := DetectSettingsFormat(path)

	w, err := NewWatcher(cfg)
	if err != nil {
		return nil, err
	}

	reload := func(p string) (map[string]string, bool) {
		values, err := LoadSettingsFile(p, format)
		if err != nil {
			w.reportError(err, p)
			return nil, false
		}
		w.config.Audit.LogSettingsFile(AuditSettingsReloaded, p, len(values))
		return values, true
	}

	err = w.Watch(path, func(event ChangeEvent) {
		if event.IsDelete {
			w.config.Logger.Warn("settings file deleted", "path", event.Path)
			return
		}
		if values, ok := reload(event.Path); ok {
			callback(values)
		}
	})
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		values, err := LoadSettingsFile(path, format)
		if err != nil {
			return nil, err
		}
		callback(values)
	}

	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// SimpleFileWatcher reports the path of every create or modify of a file.
// The returned watcher is already running.
func SimpleFileWatcher(path string, callback func(path string)) (*Watcher, error) {
	if callback == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "callback cannot be nil")
	}
	w, err := NewWatcher(WatcherConfig{})
	if err != nil {
		return nil, err
	}
	err = w.Watch(path, func(event ChangeEvent) {
		if !event.IsDelete {
			callback(event.Path)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}
