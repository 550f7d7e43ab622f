// audit_backend.go: Storage backends for the audit trail
//
// Two backends implement auditBackend: SQLite (the default, queryable,
// versioned schema in WAL mode) and JSONL (one JSON object per line,
// selected by a .jsonl OutputFile). When SQLite cannot be opened the logger
// falls back to JSONL so that auditing never prevents startup.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditBackend abstracts where audit events are persisted.
type auditBackend interface {
	// Write persists a batch of events. Implementations must be safe for
	// concurrent use.
	Write(events []AuditEvent) error

	// Flush commits pending writes to stable storage.
	Flush() error

	// Close releases all resources. The backend must not be used afterwards.
	Close() error

	// Maintenance performs backend specific housekeeping.
	Maintenance() error

	// GetStats summarizes the stored events.
	GetStats() (*AuditDatabaseStats, error)

	// Query returns stored events matching filter, newest first.
	Query(filter AuditFilter) ([]AuditEvent, error)
}

// AuditDatabaseStats summarizes an audit store.
type AuditDatabaseStats struct {
	TotalEvents       int64            `json:"total_events"`
	EventsByLevel     map[string]int64 `json:"events_by_level"`
	EventsByComponent map[string]int64 `json:"events_by_component"`
	OldestEvent       *time.Time       `json:"oldest_event"`
	NewestEvent       *time.Time       `json:"newest_event"`
	DatabaseSize      int64            `json:"database_size_bytes"`
	SchemaVersion     int              `json:"schema_version"`
}

func newAuditStats() *AuditDatabaseStats {
	return &AuditDatabaseStats{
		EventsByLevel:     make(map[string]int64),
		EventsByComponent: make(map[string]int64),
	}
}

// createAuditBackend selects the backend for config.
//
//  1. A .jsonl OutputFile always uses JSONL.
//  2. Otherwise SQLite is tried first.
//  3. JSONL is the fallback when SQLite fails and an OutputFile is known.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config.OutputFile)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}

	fallback := config.OutputFile
	if fallback == "" {
		return nil, err
	}
	fallback = strings.TrimSuffix(fallback, filepath.Ext(fallback)) + ".jsonl"
	jsonlBackend, jsonlErr := newJSONLBackend(fallback)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// DefaultAuditDatabasePath is where the SQLite backend stores events when no
// OutputFile is configured.
func DefaultAuditDatabasePath() string {
	return filepath.Join(os.TempDir(), "hestia", "settings-audit.db")
}

type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	sourceFile string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := DefaultAuditDatabasePath()
	if config.OutputFile != "" {
		dbPath = config.OutputFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	db, err := openSQLiteDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	backend := &sqliteAuditBackend{
		db:         db,
		dbPath:     dbPath,
		sourceFile: config.OutputFile,
	}
	if err := backend.ensureSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit database schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit database statements: %w", err)
	}
	return backend, nil
}

// openSQLiteDatabase opens dbPath in WAL mode. Readers never block the
// writer, which matters because the CLI queries while a service writes.
func openSQLiteDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database (close error: %v): %w", closeErr, err)
		}
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	return db, nil
}

const auditSchemaVersion = 2

// ensureSchemaVersion migrates the database to auditSchemaVersion.
//   - v1: audit_events table with basic indexes
//   - v2: composite indexes for the key and event lookups used by Query
func (s *sqliteAuditBackend) ensureSchemaVersion() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}
	if version >= auditSchemaVersion {
		return nil
	}

	if err := s.migrateSchema(version, auditSchemaVersion); err != nil {
		return fmt.Errorf("schema migration from v%d to v%d failed: %w", version, auditSchemaVersion, err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO schema_info (version, updated_at) VALUES (?, CURRENT_TIMESTAMP)`, auditSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) migrateSchema(oldVersion, newVersion int) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for version := oldVersion; version < newVersion; version++ {
		var stmts []string
		switch version {
		case 0:
			stmts = []string{
				`CREATE TABLE IF NOT EXISTS audit_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp TEXT NOT NULL,
					level TEXT NOT NULL,
					event TEXT NOT NULL,
					component TEXT NOT NULL,
					original_output_file TEXT NOT NULL,
					file_path TEXT,
					setting_key TEXT,
					old_value TEXT,
					new_value TEXT,
					process_id INTEGER NOT NULL,
					process_name TEXT NOT NULL,
					context TEXT,
					checksum TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);`,
				"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_events(level)",
				"CREATE INDEX IF NOT EXISTS idx_audit_component ON audit_events(component)",
			}
		case 1:
			stmts = []string{
				"CREATE INDEX IF NOT EXISTS idx_audit_event_time ON audit_events(event, timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_key_time ON audit_events(setting_key, timestamp)",
			}
		default:
			return fmt.Errorf("unknown migration path from version %d", version)
		}
		for _, stmt := range stmts {
			if _, err = tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration to v%d failed: %w", version+1, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) prepareStatements() error {
	stmt, err := s.db.Prepare(`
	INSERT INTO audit_events (
		timestamp, level, event, component,
		original_output_file, process_id, process_name,
		file_path, setting_key, old_value, new_value, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	s.insertStmt = stmt
	return nil
}

func (s *sqliteAuditBackend) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Write inserts the batch in one transaction.
func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	if s.isClosed() {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				fmt.Fprintf(os.Stderr, "Failed to rollback audit transaction: %v\n", rollbackErr)
			}
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer func() { _ = txStmt.Close() }()

	for _, event := range events {
		if err = s.insertEvent(txStmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func marshalOptional(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalOptional(text string, out any) {
	if text == "" {
		return
	}
	_ = json.Unmarshal([]byte(text), out)
}

func (s *sqliteAuditBackend) insertEvent(stmt *sql.Stmt, event AuditEvent) error {
	oldValue, err := marshalOptional(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to serialize old_value: %w", err)
	}
	newValue, err := marshalOptional(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to serialize new_value: %w", err)
	}
	var context string
	if event.Context != nil {
		if context, err = marshalOptional(event.Context); err != nil {
			return fmt.Errorf("failed to serialize context: %w", err)
		}
	}

	_, err = stmt.Exec(
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Component,
		s.sourceFile,
		event.ProcessID,
		event.ProcessName,
		event.FilePath,
		event.Key,
		oldValue,
		newValue,
		context,
		event.Checksum,
	)
	return err
}

// Query builds a parameterized SELECT from the non-zero filter fields.
func (s *sqliteAuditBackend) Query(filter AuditFilter) ([]AuditEvent, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("cannot query closed SQLite audit backend")
	}

	query := `SELECT timestamp, level, event, component, file_path, setting_key,
		old_value, new_value, process_id, process_name, context, checksum
		FROM audit_events`
	var where []string
	var args []any
	if filter.Event != "" {
		where = append(where, "event = ?")
		args = append(args, filter.Event)
	}
	if filter.Component != "" {
		where = append(where, "component = ?")
		args = append(args, filter.Component)
	}
	if filter.Key != "" {
		where = append(where, "setting_key = ?")
		args = append(args, filter.Key)
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []AuditEvent
	for rows.Next() {
		var (
			ts, level                      string
			filePath, key, oldV, newV, ctx sql.NullString
			checksum                       sql.NullString
			event                          AuditEvent
		)
		if err := rows.Scan(&ts, &level, &event.Event, &event.Component, &filePath, &key,
			&oldV, &newV, &event.ProcessID, &event.ProcessName, &ctx, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		event.Level = ParseAuditLevel(level)
		event.FilePath = filePath.String
		event.Key = key.String
		event.Checksum = checksum.String
		unmarshalOptional(oldV.String, &event.OldValue)
		unmarshalOptional(newV.String, &event.NewValue)
		unmarshalOptional(ctx.String, &event.Context)
		events = append(events, event)
	}
	return events, rows.Err()
}

// Flush forces a WAL checkpoint.
func (s *sqliteAuditBackend) Flush() error {
	if s.isClosed() {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

// Maintenance drops events older than the retention period and refreshes
// planner statistics.
func (s *sqliteAuditBackend) Maintenance() error {
	const retentionDays = 90

	if s.isClosed() {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM audit_events WHERE created_at < datetime('now', '-' || ? || ' days')`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old audit events: %w", err)
	}
	for _, task := range []string{"PRAGMA optimize", "PRAGMA wal_checkpoint(FULL)"} {
		_, _ = s.db.Exec(task) // optimizations are best effort
	}
	return nil
}

// GetStats counts events per level and component and reports the time range.
func (s *sqliteAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	stats := newAuditStats()

	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total events count: %w", err)
	}
	if err := s.countBy("level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.countBy("component", stats.EventsByComponent); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get event time range: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, oldest.String); oldest.Valid && err == nil {
		stats.OldestEvent = &t
	}
	if t, err := time.Parse(time.RFC3339Nano, newest.String); newest.Valid && err == nil {
		stats.NewestEvent = &t
	}

	if err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&stats.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// countBy fills counts with the number of events per value of column, which
// is always one of the fixed column names above.
func (s *sqliteAuditBackend) countBy(column string, counts map[string]int64) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column)
	if err != nil {
		return fmt.Errorf("failed to get events by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return fmt.Errorf("failed to scan %s stats: %w", column, err)
		}
		counts[name] = count
	}
	return rows.Err()
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *sqliteAuditBackend) Close() error {
	if s.isClosed() {
		return nil
	}

	var errs []error
	if err := s.Flush(); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	s.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(path string) (*jsonlAuditBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- audit path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return &jsonlAuditBackend{file: file, path: path}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	return nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

// Maintenance is a no-op: JSONL files are rotated by external tooling.
func (j *jsonlAuditBackend) Maintenance() error {
	return nil
}

// readAll decodes every line of the file, skipping lines that do not parse.
func (j *jsonlAuditBackend) readAll() ([]AuditEvent, error) {
	f, err := os.Open(j.path) // #nosec G304 -- same path the backend writes to
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func (j *jsonlAuditBackend) Query(filter AuditFilter) ([]AuditEvent, error) {
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}

	var out []AuditEvent
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if (filter.Event != "" && e.Event != filter.Event) ||
			(filter.Component != "" && e.Component != filter.Component) ||
			(filter.Key != "" && e.Key != filter.Key) ||
			(!filter.Since.IsZero() && e.Timestamp.Before(filter.Since)) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (j *jsonlAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	stats := newAuditStats()
	stats.SchemaVersion = 1

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	for i := range all {
		stats.TotalEvents++
		stats.EventsByLevel[all[i].Level.String()]++
		stats.EventsByComponent[all[i].Component]++
	}
	if len(all) > 0 {
		sorted := make([]time.Time, len(all))
		for i := range all {
			sorted[i] = all[i].Timestamp
		}
		sort.Slice(sorted, func(a, b int) bool { return sorted[a].Before(sorted[b]) })
		stats.OldestEvent = &sorted[0]
		stats.NewestEvent = &sorted[len(sorted)-1]
	}
	if info, err := os.Stat(j.path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
