// audit_test.go - Tests for the buffered audit logger
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestAuditLogger(t *testing.T, file string) *AuditLogger {
	t.Helper()
	auditor, err := NewAuditLogger(AuditConfig{
		Enabled:       true,
		OutputFile:    filepath.Join(t.TempDir(), file),
		MinLevel:      AuditInfo,
		BufferSize:    10,
		FlushInterval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	t.Cleanup(func() {
		if err := auditor.Close(); err != nil {
			t.Errorf("Failed to close auditor: %v", err)
		}
	})
	return auditor
}

func TestAuditLoggerJSONL(t *testing.T) {
	auditor := newTestAuditLogger(t, "audit.jsonl")

	auditor.LogFileWatch(AuditWatchStart, "/test/path")
	auditor.LogSettingChange("/test/settings.conf", "port", "8080", "9090")

	if err := auditor.Flush(); err != nil {
		t.Fatalf("Failed to flush auditor: %v", err)
	}

	data, err := os.ReadFile(auditor.config.OutputFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[1], `"key":"port"`) || !strings.Contains(lines[1], `"new_value":"9090"`) {
		t.Errorf("setting change line missing fields: %s", lines[1])
	}
}

func TestAuditLoggerSettingsEvents(t *testing.T) {
	auditor := newTestAuditLogger(t, "audit.db")

	auditor.LogSettingChange("f", "a", "1", "2")
	auditor.LogSettingRejected("f", "a", "5", "not in range")
	auditor.LogSettingErased("f", "a", "2")
	auditor.LogAllowedValuesChanged("f", "a", "range [0, 10, 2)")
	auditor.LogSettingsFile(AuditSettingsLoaded, "f", 3)
	auditor.LogCallbackFailed("f", "a", errors.New("boom"))

	events, err := auditor.Query(AuditFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}

	want := []string{
		AuditCallbackFailed, AuditSettingsLoaded, AuditAllowedValuesChanged,
		AuditSettingErased, AuditSettingRejected, AuditSettingChanged,
	}
	for i, e := range events {
		if e.Event != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Event, want[i])
		}
	}
	if events[0].Context["error"] != "boom" {
		t.Errorf("callback failure context = %v", events[0].Context)
	}
	if events[4].Level != AuditWarn || events[4].Context["reason"] != "not in range" {
		t.Errorf("rejection event = %+v", events[4])
	}

	stats, err := auditor.GetStats()
	if err != nil || stats.TotalEvents != 6 {
		t.Errorf("GetStats = %+v, %v", stats, err)
	}
	if err := auditor.Maintenance(); err != nil {
		t.Errorf("Maintenance failed: %v", err)
	}
}

func TestAuditLoggerMinLevel(t *testing.T) {
	auditor, err := NewAuditLogger(AuditConfig{
		Enabled:    true,
		OutputFile: filepath.Join(t.TempDir(), "audit.db"),
		MinLevel:   AuditCritical,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer auditor.Close()

	// info is below the threshold, critical is kept
	auditor.LogFileWatch(AuditFileChanged, "/x")
	auditor.LogSettingChange("/x", "k", "old", "new")

	events, err := auditor.Query(AuditFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event != AuditSettingChanged {
		t.Errorf("MinLevel filtering failed: %+v", events)
	}
}

func TestAuditLoggerTamperDetection(t *testing.T) {
	e := AuditEvent{
		Timestamp: time.Now(),
		Event:     AuditSettingChanged,
		Component: "settings",
		Key:       "port",
		OldValue:  "1",
		NewValue:  "2",
	}
	e.Checksum = generateChecksum(e)
	if !VerifyChecksum(e) {
		t.Fatal("fresh event should verify")
	}

	tampered := e
	tampered.NewValue = "3"
	if VerifyChecksum(tampered) {
		t.Error("modified event should not verify")
	}
	if generateChecksum(e) != generateChecksum(e) {
		t.Error("checksum must be deterministic")
	}
}

func TestNilAuditLoggerIsSafe(t *testing.T) {
	var auditor *AuditLogger
	auditor.LogSettingChange("f", "k", "a", "b")
	if err := auditor.Flush(); err != nil {
		t.Errorf("Flush on nil logger: %v", err)
	}
	if err := auditor.Close(); err != nil {
		t.Errorf("Close on nil logger: %v", err)
	}
	if events, err := auditor.Query(AuditFilter{}); err != nil || events != nil {
		t.Errorf("Query on nil logger = %v, %v", events, err)
	}
}

func TestAuditLevel_String(t *testing.T) {
	tests := []struct {
		level    AuditLevel
		expected string
	}{
		{AuditInfo, "INFO"},
		{AuditWarn, "WARN"},
		{AuditCritical, "CRITICAL"},
		{AuditSecurity, "SECURITY"},
		{AuditLevel(999), "UNKNOWN"},
	}
	for _, test := range tests {
		if got := test.level.String(); got != test.expected {
			t.Errorf("AuditLevel(%d).String() = %s, want %s", test.level, got, test.expected)
		}
		if test.level <= AuditSecurity && ParseAuditLevel(test.expected) != test.level {
			t.Errorf("ParseAuditLevel(%s) did not round trip", test.expected)
		}
	}
}
