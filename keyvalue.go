// keyvalue.go: The "key = value" settings file format
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// KeyValueHeader is the first line written by WriteKeyValueFile.
const KeyValueHeader = "# hestia settings file"

// ParseKeyValue parses "key = value" lines. The line is split at the first
// '=' and both sides are trimmed. Blank lines, lines starting with '#' and
// lines without '=' are skipped. Later duplicates win.
func ParseKeyValue(data []byte) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// SerializeKeyValue renders values as a header line followed by
// "key = value" lines in sorted key order.
func SerializeKeyValue(values map[string]string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(KeyValueHeader)
	buf.WriteByte('\n')
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteString(" = ")
		buf.WriteString(values[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ReadKeyValueFile reads and parses a key-value settings file.
func ReadKeyValueFile(path string) (map[string]string, error) {
	data, err := readSettingsBytes(path)
	if err != nil {
		return nil, err
	}
	return ParseKeyValue(data), nil
}

// WriteKeyValueFile atomically replaces path with the serialized values.
func WriteKeyValueFile(path string, values map[string]string) error {
	if err := ValidateSecurePath(path); err != nil {
		return errors.Wrap(err, ErrCodeFileIO, "refusing to write settings file").
			WithContext("path", path)
	}
	return atomicWrite(path, SerializeKeyValue(values))
}

func readSettingsBytes(path string) ([]byte, error) {
	if err := ValidateSecurePath(path); err != nil {
		return nil, errors.Wrap(err, ErrCodeFileIO, "refusing to read settings file").
			WithContext("path", path)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path validated above
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeFileIO, "failed to read settings file").
			WithContext("path", path)
	}
	return data, nil
}

// atomicWrite writes data to a temporary file in the target directory and
// renames it over path, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tempPath := filepath.Join(dir, "."+base+".tmp."+fmt.Sprintf("%d", time.Now().UnixNano()))

	if err := os.WriteFile(tempPath, data, 0644); err != nil { // #nosec G306 -- settings files are not secrets
		return errors.Wrap(err, ErrCodeFileIO, "failed to write temp file").
			WithContext("path", path)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, ErrCodeFileIO, "failed to rename temp file").
			WithContext("path", path)
	}
	return nil
}
