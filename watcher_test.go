// watcher_test.go - Tests for the polling file watcher
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, cfg WatcherConfig) *Watcher {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
		cfg.CacheTTL = 5 * time.Millisecond
	}
	w, err := NewWatcher(cfg)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitForEvent(t *testing.T, events <-chan ChangeEvent, match func(ChangeEvent) bool) ChangeEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-events:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for change event")
			return ChangeEvent{}
		}
	}
}

func TestWatcherDetectsModifyCreateDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(path, []byte("a = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t, WatcherConfig{})
	events := make(chan ChangeEvent, 16)
	if err := w.Watch(path, func(e ChangeEvent) { events <- e }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("a = 1\nb = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// the write may be observed half done, wait for the final size
	want := int64(len("a = 1\nb = 2\n"))
	waitForEvent(t, events, func(e ChangeEvent) bool { return e.IsModify && e.Size == want })

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, events, func(e ChangeEvent) bool { return e.IsDelete })

	if err := os.WriteFile(path, []byte("c = 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, events, func(e ChangeEvent) bool { return e.IsCreate })

	if w.Delivered() < 3 {
		t.Errorf("Delivered = %d", w.Delivered())
	}
}

func TestWatcherLifecycle(t *testing.T) {
	w := newTestWatcher(t, WatcherConfig{})

	if err := w.Stop(); !HasCode(err, ErrCodeWatcherStopped) {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !HasCode(err, ErrCodeWatcherBusy) {
		t.Errorf("second Start = %v", err)
	}
	if !w.IsRunning() {
		t.Error("watcher should be running")
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if w.IsRunning() {
		t.Error("watcher should be stopped")
	}

	// restart after stop
	if err := w.Start(); err != nil {
		t.Errorf("restart failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close on a stopped watcher should be a no-op: %v", err)
	}
}

func TestWatcherConcurrentStartStop(t *testing.T) {
	w := newTestWatcher(t, WatcherConfig{})

	// one full cycle first so lazily started runtime helpers are counted
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	baseline := runtime.NumGoroutine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := w.Start(); err != nil && !HasCode(err, ErrCodeWatcherBusy) {
					t.Errorf("Start: %v", err)
				}
				if err := w.Stop(); err != nil && !HasCode(err, ErrCodeWatcherStopped) {
					t.Errorf("Stop: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.IsRunning() {
		t.Fatal("watcher should be stopped")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline {
		if time.Now().After(deadline) {
			t.Fatalf("poll or consume loops left running: %d goroutines, baseline %d", runtime.NumGoroutine(), baseline)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherWatchValidation(t *testing.T) {
	w := newTestWatcher(t, WatcherConfig{MaxWatchedFiles: 2})
	dir := t.TempDir()

	if err := w.Watch(filepath.Join(dir, "a"), nil); !HasCode(err, ErrCodeInvalidConfig) {
		t.Errorf("nil callback = %v", err)
	}
	noop := func(ChangeEvent) {}
	if err := w.Watch("../outside.conf", noop); !HasCode(err, ErrCodeInvalidConfig) {
		t.Errorf("traversal = %v", err)
	}

	for _, name := range []string{"a", "b"} {
		if err := w.Watch(filepath.Join(dir, name), noop); err != nil {
			t.Fatalf("Watch(%s) failed: %v", name, err)
		}
	}
	// re-watching an existing file does not count against the limit
	if err := w.Watch(filepath.Join(dir, "a"), noop); err != nil {
		t.Errorf("re-watch failed: %v", err)
	}
	if err := w.Watch(filepath.Join(dir, "c"), noop); !HasCode(err, ErrCodeInvalidConfig) {
		t.Errorf("limit exceeded = %v", err)
	}
	if w.WatchedFiles() != 2 {
		t.Errorf("WatchedFiles = %d", w.WatchedFiles())
	}

	if err := w.Unwatch(filepath.Join(dir, "a")); err != nil {
		t.Fatal(err)
	}
	if w.WatchedFiles() != 1 {
		t.Errorf("WatchedFiles after Unwatch = %d", w.WatchedFiles())
	}
}

func TestWatcherCallbackPanicRecovery(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.conf")
	good := filepath.Join(dir, "good.conf")

	var errs atomic.Int32
	w := newTestWatcher(t, WatcherConfig{
		PollInterval: 20 * time.Millisecond,
		CacheTTL:     5 * time.Millisecond,
		ErrorHandler: func(err error, path string) {
			if HasCode(err, ErrCodeCallbackFailed) {
				errs.Add(1)
			}
		},
	})
	goodEvents := make(chan ChangeEvent, 4)
	_ = w.Watch(bad, func(ChangeEvent) { panic("callback bug") })
	_ = w.Watch(good, func(e ChangeEvent) { goodEvents <- e })
	_ = w.Start()

	_ = os.WriteFile(bad, []byte("x"), 0644)
	_ = os.WriteFile(good, []byte("y"), 0644)

	waitForEvent(t, goodEvents, func(e ChangeEvent) bool { return e.IsCreate })
	deadline := time.Now().Add(3 * time.Second)
	for w.Panics() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if w.Panics() == 0 || int64(errs.Load()) < w.Panics() {
		t.Errorf("Panics = %d, handler errors = %d", w.Panics(), errs.Load())
	}
	if !w.IsRunning() {
		t.Error("a panicking callback must not stop the watcher")
	}
}

func TestWatcherStatCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.conf")
	_ = os.WriteFile(path, []byte("1"), 0644)

	w := newTestWatcher(t, WatcherConfig{PollInterval: time.Second, CacheTTL: time.Second})
	if err := w.Watch(path, func(ChangeEvent) {}); err != nil {
		t.Fatal(err)
	}

	stats := w.GetCacheStats()
	if stats.Entries != 1 {
		t.Errorf("expected one cached stat, got %d", stats.Entries)
	}
	if stats.OldestAge < 0 || stats.NewestAge > stats.OldestAge {
		t.Errorf("inconsistent ages %+v", stats)
	}

	first, _ := w.getStat(path)
	_ = os.WriteFile(path, []byte("12345"), 0644)
	second, _ := w.getStat(path)
	if second.size != first.size {
		t.Error("a fresh cache entry should be reused")
	}

	w.ClearCache()
	if w.GetCacheStats().Entries != 0 {
		t.Error("ClearCache left entries")
	}
	third, _ := w.getStat(path)
	if third.size != 5 {
		t.Errorf("stat after ClearCache = %d bytes", third.size)
	}
}

func TestWatcherConfigDefaults(t *testing.T) {
	cfg := WatcherConfig{}.WithDefaults()
	if cfg.PollInterval != 5*time.Second || cfg.CacheTTL != 2500*time.Millisecond {
		t.Errorf("unexpected intervals %v / %v", cfg.PollInterval, cfg.CacheTTL)
	}
	if cfg.MaxWatchedFiles != 100 || cfg.QueueSize != 1024 || cfg.Logger == nil {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	capped := WatcherConfig{PollInterval: time.Second, CacheTTL: time.Minute}.WithDefaults()
	if capped.CacheTTL != 500*time.Millisecond {
		t.Errorf("CacheTTL above PollInterval should be reset, got %v", capped.CacheTTL)
	}

	invalid := []WatcherConfig{
		{PollInterval: time.Millisecond},
		{PollInterval: -time.Second},
		{CacheTTL: -1},
		{MaxWatchedFiles: -1},
		{MaxWatchedFiles: maxWatchedFilesLimit + 1},
		{QueueSize: -5},
	}
	for _, c := range invalid {
		if _, err := NewWatcher(c); !HasCode(err, ErrCodeInvalidConfig) {
			t.Errorf("NewWatcher(%+v) = %v, want %s", c, err, ErrCodeInvalidConfig)
		}
	}
}

func TestSettingsWatchFileReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.conf")
	if err := os.WriteFile(path, []byte("level = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sm := newTestSettings(t, SettingsConfig{FilePath: path, ReadFileOnCreation: true})
	changed := make(chan string, 4)
	sm.AddCallback("level", func(v string) error {
		changed <- v
		return nil
	})

	w, err := sm.WatchFile(WatcherConfig{PollInterval: 20 * time.Millisecond, CacheTTL: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("WatchFile failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("level = 22\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-changed:
		if v != "22" {
			t.Errorf("callback saw %q", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("settings were not reloaded")
	}
	if v, _ := GetAs[int](sm, "level"); v != 22 {
		t.Errorf("level = %d after reload", v)
	}

	if _, err := newTestSettings(t, SettingsConfig{}).WatchFile(WatcherConfig{}); !HasCode(err, ErrCodeInvalidConfig) {
		t.Errorf("WatchFile without a file = %v", err)
	}
}
