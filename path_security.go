// path_security.go: Path validation applied before every settings file operation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
)

const (
	maxPathLength = 4096
	maxPathDepth  = 50
)

var (
	traversalPatterns = []string{"..", "../", "..\\", "/..", "\\.."}

	// single and double encoded "..", "/", "\" and NUL
	encodedPatterns = []string{
		"%2e%2e", "%252e%252e",
		"%2f", "%252f",
		"%5c", "%255c",
		"%00", "%2500",
	}

	sensitivePaths = []string{
		"/etc/passwd", "/etc/shadow", "/etc/hosts",
		"/proc/", "/sys/", "/dev/",
		"windows/system32", "program files", "system volume information",
		".ssh/", ".aws/", ".docker/",
	}

	windowsDevices = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
)

// ValidateSecurePath rejects paths that try to escape their directory or
// reach sensitive locations. It checks, in order: traversal sequences,
// URL-encoded traversal, well known system files, Windows device names and
// alternate data streams, length and depth limits, null bytes and control
// characters.
func ValidateSecurePath(path string) error {
	if path == "" {
		return errors.New(ErrCodeInvalidConfig, "empty path not allowed")
	}

	for _, pattern := range traversalPatterns {
		if strings.Contains(path, pattern) {
			return pathError("path contains dangerous traversal pattern", path, pattern)
		}
	}

	lower := strings.ToLower(path)
	for _, pattern := range encodedPatterns {
		if strings.Contains(lower, pattern) {
			return pathError("path contains URL-encoded traversal pattern", path, pattern)
		}
	}

	for _, sensitive := range sensitivePaths {
		if strings.Contains(lower, sensitive) {
			return pathError("access to system file/directory not allowed", path, sensitive)
		}
	}

	base := strings.ToUpper(filepath.Base(path))
	if dot := strings.LastIndex(base, "."); dot != -1 {
		base = base[:dot]
	}
	if windowsDevices[base] {
		return pathError("windows device name not allowed", path, base)
	}

	// file.ext:stream, but not drive letters (C:), URLs (://) or UNC (:\\)
	if colon := strings.Index(path, ":"); colon > 1 && colon < len(path)-1 {
		after := path[colon+1:]
		if !strings.HasPrefix(after, "//") && !strings.HasPrefix(after, "\\\\") && !strings.HasPrefix(after, ".") {
			return pathError("windows alternate data streams not allowed", path, after)
		}
	}

	if len(path) > maxPathLength {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("path too long (max %d characters): %d", maxPathLength, len(path)))
	}
	if depth := strings.Count(path, "/") + strings.Count(path, "\\"); depth > maxPathDepth {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("path too complex (max %d directory levels): %d", maxPathDepth, depth))
	}

	for _, char := range path {
		if char == 0 {
			return errors.New(ErrCodeInvalidConfig, "null byte in path not allowed")
		}
		if char < 32 && char != '\t' && char != '\n' && char != '\r' {
			return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("control character in path not allowed: %d", char))
		}
	}
	return nil
}

func pathError(msg, path, match string) error {
	return errors.New(ErrCodeInvalidConfig, msg+": "+match).WithContext("path", path)
}
