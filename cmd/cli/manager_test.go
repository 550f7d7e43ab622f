// Tests for the CLI manager wiring
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agilira/hestia"
)

// cliFixture runs commands against a fresh manager writing into a buffer.
type cliFixture struct {
	t       *testing.T
	dir     string
	out     *syncBuffer
	manager *Manager
}

// syncBuffer guards a bytes.Buffer written by the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	out := &syncBuffer{}
	return &cliFixture{
		t:       t,
		dir:     t.TempDir(),
		out:     out,
		manager: NewManager().WithOutput(out),
	}
}

// run executes args and returns the trimmed output of that command only.
func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	f.out.Reset()
	err := f.manager.Run(args)
	return strings.TrimSpace(f.out.String()), err
}

func (f *cliFixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *cliFixture) writeFile(name, content string) string {
	f.t.Helper()
	p := f.path(name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		f.t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestNewManager(t *testing.T) {
	m := NewManager()
	if m.app == nil {
		t.Fatal("Manager.app not initialized")
	}
	if m.out != os.Stdout {
		t.Error("output should default to stdout")
	}
	if m.auditLogger != nil {
		t.Error("audit logger should be nil by default")
	}
}

func TestManagerWithAudit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli_audit.jsonl")
	cfg := hestia.DefaultAuditConfig()
	cfg.OutputFile = dbPath
	al, err := hestia.NewAuditLogger(cfg)
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	defer func() { _ = al.Close() }()

	out := &syncBuffer{}
	m := NewManager().WithAudit(al).WithOutput(out)
	if m.auditLogger != al {
		t.Fatal("WithAudit did not set the logger")
	}

	settingsPath := filepath.Join(t.TempDir(), "app.conf")
	if err := m.Run([]string{"settings", "set", settingsPath, "port", "8080"}); err != nil {
		t.Fatalf("settings set failed: %v", err)
	}

	events, err := al.Query(hestia.AuditFilter{Key: "port"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected the CLI change to be audited")
	}

	out.Reset()
	if err := m.Run([]string{"audit", "query", "--key", "port"}); err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if !strings.Contains(out.String(), "key=port") {
		t.Errorf("audit query output missing event:\n%s", out.String())
	}
}

func TestWatchCommandReportsChanges(t *testing.T) {
	f := newCLIFixture(t)
	path := f.writeFile("watched.conf", "a = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	f.manager.WithContext(ctx)

	done := make(chan error, 1)
	go func() { done <- f.manager.Run([]string{"watch", path, "--interval", "20ms"}) }()

	waitForOutput(t, f.out, "Watching")
	time.Sleep(50 * time.Millisecond)
	if err := hestia.WriteKeyValueFile(path, map[string]string{"a": "2", "b": "new value"}); err != nil {
		t.Fatal(err)
	}
	waitForOutput(t, f.out, "+ b = new value")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	if !strings.Contains(f.out.String(), "~ a = 2 (was 1)") {
		t.Errorf("missing change line:\n%s", f.out.String())
	}
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in:\n%s", want, out.String())
}
