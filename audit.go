// audit.go: Audit trail for settings changes
//
// Every mutation of a SettingsManager (and every reload triggered by the
// file watcher) can be recorded as an AuditEvent. Events are buffered in
// memory, stamped with a cached timestamp and a SHA-256 checksum, and
// flushed to a pluggable backend on a ticker or when the buffer fills.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// ErrCodeAuditBackend is returned when the audit storage cannot be written or read.
const ErrCodeAuditBackend = "HESTIA_AUDIT_BACKEND"

// Audit event names
const (
	AuditSettingChanged       = "setting_changed"
	AuditSettingRejected      = "setting_rejected"
	AuditSettingErased        = "setting_erased"
	AuditAllowedValuesChanged = "allowed_values_changed"
	AuditSettingsLoaded       = "settings_loaded"
	AuditSettingsSaved        = "settings_saved"
	AuditCallbackFailed       = "callback_failed"
	AuditWatchStart           = "watch_start"
	AuditWatchStop            = "watch_stop"
	AuditFileChanged          = "file_changed"
	AuditCallbackPanic        = "callback_panic"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel is the inverse of AuditLevel.String. Unknown names map to
// AuditInfo.
func ParseAuditLevel(s string) AuditLevel {
	switch s {
	case "WARN":
		return AuditWarn
	case "CRITICAL":
		return AuditCritical
	case "SECURITY":
		return AuditSecurity
	default:
		return AuditInfo
	}
}

// AuditEvent represents a single auditable event
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       AuditLevel     `json:"level"`
	Event       string         `json:"event"`
	Component   string         `json:"component"`
	FilePath    string         `json:"file_path,omitempty"`
	Key         string         `json:"key,omitempty"`
	OldValue    any            `json:"old_value,omitempty"`
	NewValue    any            `json:"new_value,omitempty"`
	ProcessID   int            `json:"process_id"`
	ProcessName string         `json:"process_name"`
	Context     map[string]any `json:"context,omitempty"`
	Checksum    string         `json:"checksum"` // tamper detection
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled       bool          `json:"enabled"`
	OutputFile    string        `json:"output_file"`
	MinLevel      AuditLevel    `json:"min_level"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultAuditConfig returns the default audit configuration.
//
// An empty OutputFile selects the SQLite backend at the shared default
// database path. An OutputFile ending in .jsonl selects the JSONL backend,
// one ending in .db selects SQLite at that path.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// AuditFilter selects events returned by Query. Zero fields match everything.
type AuditFilter struct {
	Event     string
	Component string
	Key       string
	Since     time.Time
	Limit     int // newest first; 0 means no limit
}

// AuditLogger buffers audit events and flushes them to a backend.
// A nil *AuditLogger is valid and discards everything, so components can
// hold one unconditionally.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger, choosing the backend from
// config.OutputFile.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}

	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeAuditBackend, "failed to initialize audit backend")
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Log records an audit event.
func (al *AuditLogger) Log(level AuditLevel, event, component, filePath, key string, oldVal, newVal any, context map[string]any) {
	if al == nil || al.backend == nil || !al.config.Enabled || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   component,
		FilePath:    filePath,
		Key:         key,
		OldValue:    oldVal,
		NewValue:    newVal,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // a failed write keeps the events buffered for the next flush
	}
	al.bufferMu.Unlock()
}

// LogSettingChange records a committed value change.
func (al *AuditLogger) LogSettingChange(filePath, key, oldValue, newValue string) {
	al.Log(AuditCritical, AuditSettingChanged, "settings", filePath, key, oldValue, newValue, nil)
}

// LogSettingRejected records a value refused by the allowed-values check.
func (al *AuditLogger) LogSettingRejected(filePath, key, value, reason string) {
	al.Log(AuditWarn, AuditSettingRejected, "settings", filePath, key, nil, value,
		map[string]any{"reason": reason})
}

// LogSettingErased records a removed key.
func (al *AuditLogger) LogSettingErased(filePath, key, oldValue string) {
	al.Log(AuditCritical, AuditSettingErased, "settings", filePath, key, oldValue, nil, nil)
}

// LogAllowedValuesChanged records a new or removed restriction.
func (al *AuditLogger) LogAllowedValuesChanged(filePath, key, restriction string) {
	al.Log(AuditInfo, AuditAllowedValuesChanged, "settings", filePath, key, nil, restriction, nil)
}

// LogSettingsFile records a load or save of the settings file.
func (al *AuditLogger) LogSettingsFile(event, filePath string, entries int) {
	al.Log(AuditInfo, event, "settings", filePath, "", nil, nil, map[string]any{"entries": entries})
}

// LogCallbackFailed records an error or panic raised by a change callback.
func (al *AuditLogger) LogCallbackFailed(filePath, key string, err error) {
	al.Log(AuditWarn, AuditCallbackFailed, "settings", filePath, key, nil, nil,
		map[string]any{"error": err.Error()})
}

// LogFileWatch records watcher lifecycle and change events.
func (al *AuditLogger) LogFileWatch(event, filePath string) {
	al.Log(AuditInfo, event, "watcher", filePath, "", nil, nil, nil)
}

// LogSecurityEvent records a security relevant event such as a rejected path.
func (al *AuditLogger) LogSecurityEvent(event, details string, context map[string]any) {
	if context == nil {
		context = map[string]any{}
	}
	context["details"] = details
	al.Log(AuditSecurity, event, "security", "", "", nil, nil, context)
}

// Query flushes pending events and returns the ones matching filter, newest
// first.
func (al *AuditLogger) Query(filter AuditFilter) ([]AuditEvent, error) {
	if al == nil || al.backend == nil {
		return nil, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	events, err := al.backend.Query(filter)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeAuditBackend, "failed to query audit events")
	}
	return events, nil
}

// GetStats returns backend statistics after flushing pending events.
func (al *AuditLogger) GetStats() (*AuditDatabaseStats, error) {
	if al == nil || al.backend == nil {
		return nil, errors.New(ErrCodeAuditBackend, "audit logger is not initialized")
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.GetStats()
}

// Maintenance runs backend housekeeping (retention cleanup, checkpoints).
func (al *AuditLogger) Maintenance() error {
	if al == nil || al.backend == nil {
		return nil
	}
	return al.backend.Maintenance()
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if al == nil {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Close flushes pending events and releases the backend. It is safe to call
// more than once.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}

		if flushErr := al.Flush(); flushErr != nil {
			err = flushErr
			return
		}
		if al.backend != nil {
			if closeErr := al.backend.Close(); closeErr != nil {
				err = errors.Wrap(closeErr, ErrCodeAuditBackend, "failed to close audit backend")
			}
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush() // retried on the next tick
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend (caller holds bufferMu).
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return errors.Wrap(err, ErrCodeAuditBackend, "failed to write audit events")
	}
	al.buffer = al.buffer[:0]
	return nil
}

func generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Component, event.Key, event.OldValue, event.NewValue)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// VerifyChecksum reports whether event still matches its checksum.
// Only events whose values are strings (as all settings events are) survive
// a storage round trip with their checksum intact.
func VerifyChecksum(event AuditEvent) bool {
	return event.Checksum != "" && generateChecksum(event) == event.Checksum
}

func getProcessName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "hestia"
}
