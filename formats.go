// formats.go: Settings file formats and format detection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// SettingsFormat identifies the on-disk encoding of a settings file.
type SettingsFormat int

const (
	FormatKeyValue SettingsFormat = iota
	FormatYAML
	FormatJSON
)

func (f SettingsFormat) String() string {
	switch f {
	case FormatKeyValue:
		return "kv"
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseSettingsFormat maps a format name ("kv", "yaml", "json") to a
// SettingsFormat.
func ParseSettingsFormat(name string) (SettingsFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kv", "keyvalue", "conf", "":
		return FormatKeyValue, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatKeyValue, errors.New(ErrCodeInvalidConfig, "unknown settings format: "+name)
}

// DetectSettingsFormat picks the format from the file extension.
// Anything that is not YAML or JSON is read as key-value text.
func DetectSettingsFormat(path string) SettingsFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatKeyValue
	}
}

// LoadSettingsFile reads path in the given format and returns its entries
// as flat text. Nested YAML/JSON objects become dot separated keys.
func LoadSettingsFile(path string, format SettingsFormat) (map[string]string, error) {
	data, err := readSettingsBytes(path)
	if err != nil {
		return nil, err
	}
	return DecodeSettings(data, format)
}

// DecodeSettings is the in-memory form of LoadSettingsFile.
func DecodeSettings(data []byte, format SettingsFormat) (map[string]string, error) {
	switch format {
	case FormatKeyValue:
		return ParseKeyValue(data), nil
	case FormatYAML:
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, errors.Wrap(err, ErrCodeFileIO, "failed to parse YAML settings")
		}
		return flattenSettings(tree, ""), nil
	case FormatJSON:
		tree := make(map[string]any)
		if len(bytes.TrimSpace(data)) == 0 {
			return map[string]string{}, nil
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, errors.Wrap(err, ErrCodeFileIO, "failed to parse JSON settings")
		}
		return flattenSettings(tree, ""), nil
	}
	return nil, errors.New(ErrCodeInvalidConfig, "unknown settings format").
		WithContext("format", int(format))
}

// SaveSettingsFile atomically writes values to path in the given format.
func SaveSettingsFile(path string, format SettingsFormat, values map[string]string) error {
	if err := ValidateSecurePath(path); err != nil {
		return errors.Wrap(err, ErrCodeFileIO, "refusing to write settings file").
			WithContext("path", path)
	}
	data, err := EncodeSettings(values, format)
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// EncodeSettings is the in-memory form of SaveSettingsFile.
func EncodeSettings(values map[string]string, format SettingsFormat) ([]byte, error) {
	switch format {
	case FormatKeyValue:
		return SerializeKeyValue(values), nil
	case FormatYAML:
		data, err := yaml.Marshal(unflattenSettings(values))
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeFileIO, "failed to encode YAML settings")
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(unflattenSettings(values), "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeFileIO, "failed to encode JSON settings")
		}
		return append(data, '\n'), nil
	}
	return nil, errors.New(ErrCodeInvalidConfig, "unknown settings format").
		WithContext("format", int(format))
}

// flattenSettings turns a decoded document into dot separated keys with
// every leaf rendered as text.
func flattenSettings(tree map[string]any, prefix string) map[string]string {
	result := make(map[string]string)
	for key, value := range tree {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]any:
			for nestedKey, nestedValue := range flattenSettings(v, fullKey) {
				result[nestedKey] = nestedValue
			}
		case nil:
			result[fullKey] = ""
		default:
			result[fullKey] = ToString(v)
		}
	}
	return result
}

// unflattenSettings rebuilds the nested document from dot separated keys.
// A key whose parent is already a leaf stays flat at the deepest free level.
func unflattenSettings(values map[string]string) map[string]any {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, key := range keys {
		node := root
		parts := strings.Split(key, ".")
		for i, part := range parts[:len(parts)-1] {
			child, ok := node[part]
			if !ok {
				next := make(map[string]any)
				node[part] = next
				node = next
				continue
			}
			if m, isMap := child.(map[string]any); isMap {
				node = m
				continue
			}
			// leaf in the way: keep the remainder as a literal key
			parts = []string{strings.Join(parts[i:], ".")}
			break
		}
		node[parts[len(parts)-1]] = typedScalar(values[key])
	}
	return root
}

// typedScalar keeps booleans and canonical integers typed in structured
// output so that "port: 8080" is not written as a quoted string.
func typedScalar(text string) any {
	switch text {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil && strconv.FormatInt(n, 10) == text {
		return n
	}
	return text
}
