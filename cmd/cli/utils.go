// Utility functions for the hestia CLI
//
// Format selection, settings store construction, duration parsing and
// writability checks shared by the command handlers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

var extendedDuration = regexp.MustCompile(`^(\d+)(d|w)$`)

// formatName turns a --format flag into a SettingsConfig.Format value.
// "auto" and "" let the store detect the format from the extension.
func formatName(flag string) string {
	if strings.EqualFold(flag, "auto") {
		return ""
	}
	return flag
}

// resolveFormat returns the format to use for path, honoring an explicit
// flag value.
func resolveFormat(path, flag string) (hestia.SettingsFormat, error) {
	if name := formatName(flag); name != "" {
		return hestia.ParseSettingsFormat(name)
	}
	return hestia.DetectSettingsFormat(path), nil
}

// openSettings loads path into a SettingsManager. With mustExist a missing
// file is an error; otherwise a missing file gives an empty store.
func (m *Manager) openSettings(path, format string, mustExist bool) (*hestia.SettingsManager, error) {
	if err := hestia.ValidateSecurePath(path); err != nil {
		return nil, err
	}
	existErr := requireExisting(path)
	if mustExist && existErr != nil {
		return nil, existErr
	}
	return hestia.NewSettingsManager(hestia.SettingsConfig{
		FilePath:           path,
		Format:             formatName(format),
		ReadFileOnCreation: existErr == nil,
		CacheTypes: []hestia.CacheType{
			hestia.CacheTypeOf[int64](),
			hestia.CacheTypeOf[uint64](),
			hestia.CacheTypeOf[float64](),
			hestia.CacheTypeOf[bool](),
		},
		Audit: m.auditLogger,
	})
}

func requireExisting(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, hestia.ErrCodeFileNotFound, "file does not exist").
			WithContext("path", path)
	}
	return nil
}

// parseExtendedDuration parses Go durations plus whole days (d) and
// weeks (w), e.g. "30d" or "2w".
func parseExtendedDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	matches := extendedDuration.FindStringSubmatch(s)
	if len(matches) != 3 {
		return 0, errors.New(hestia.ErrCodeInvalidConfig, "invalid duration").
			WithContext("value", s)
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, hestia.ErrCodeInvalidConfig, "invalid duration value").
			WithContext("value", s)
	}

	switch matches[2] {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	}
}

// checkFileWriteable reports whether path can be written, either because
// it is a writable file or because its directory is writable.
func checkFileWriteable(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return checkDirectoryWriteable(filepath.Dir(path))
	}
	if err != nil {
		return errors.Wrap(err, hestia.ErrCodeFileIO, "cannot stat file").WithContext("path", path)
	}
	if info.Mode()&0200 == 0 {
		return errors.New(hestia.ErrCodeFileIO, "file is read-only").
			WithContext("path", path).
			WithContext("mode", info.Mode().String())
	}
	return nil
}

func checkDirectoryWriteable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(err, hestia.ErrCodeFileIO, "cannot access directory").WithContext("path", dir)
	}
	if !info.IsDir() {
		return errors.New(hestia.ErrCodeFileIO, "not a directory").WithContext("path", dir)
	}
	if info.Mode()&0200 == 0 {
		return errors.New(hestia.ErrCodeFileIO, "directory is not writable").
			WithContext("path", dir).
			WithContext("mode", info.Mode().String())
	}
	return nil
}

// requireArgs returns an error naming the first missing positional
// argument.
func requireArgs(values []string, names ...string) error {
	for i, name := range names {
		if i >= len(values) || values[i] == "" {
			return errors.New(hestia.ErrCodeInvalidConfig, "missing argument").
				WithContext("argument", name)
		}
	}
	return nil
}
