// watcher.go: Polling file watcher feeding change events through a bounded queue
//
// The watcher polls with os.Stat instead of relying on OS notifications,
// which keeps it portable. Stat results are cached for CacheTTL in a
// copy-on-write map read without locks. Poll workers push change events
// into a Queue; a single consumer goroutine drains it and runs callbacks.
//
// Example:
//
//	w, _ := hestia.NewWatcher(hestia.WatcherConfig{PollInterval: time.Second})
//	_ = w.Watch("app.conf", func(e hestia.ChangeEvent) { reload(e.Path) })
//	_ = w.Start()
//	defer w.Stop()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// ChangeEvent describes a change of a watched file.
type ChangeEvent struct {
	Path     string
	ModTime  time.Time
	Size     int64
	IsCreate bool
	IsDelete bool
	IsModify bool
}

// UpdateCallback is called from the consumer goroutine for each change.
type UpdateCallback func(event ChangeEvent)

// ErrorHandler receives errors raised while watching path.
type ErrorHandler func(err error, path string)

// fileStat is a cached os.Stat result. Value type, so readers of the
// cache never share mutable state.
type fileStat struct {
	modTime  time.Time
	size     int64
	exists   bool
	cachedAt int64
}

func (fs *fileStat) isExpired(ttl time.Duration) bool {
	return timecache.CachedTimeNano()-fs.cachedAt > int64(ttl)
}

type watchedFile struct {
	path     string
	callback UpdateCallback
	lastStat fileStat
}

// Watcher polls files and reports changes to per-file callbacks.
type Watcher struct {
	config  WatcherConfig
	files   map[string]*watchedFile
	filesMu sync.RWMutex

	statCache   atomic.Pointer[map[string]fileStat]
	filesBuffer []*watchedFile

	events *Queue[ChangeEvent]
	wake   chan struct{}

	running  atomic.Bool
	lifeMu   sync.Mutex
	stopPoll chan struct{}
	stopCons chan struct{}
	pollDone chan struct{}
	consDone chan struct{}

	delivered atomic.Int64
	panics    atomic.Int64
}

// NewWatcher validates cfg and creates a stopped watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	w := &Watcher{
		config: cfg,
		files:  make(map[string]*watchedFile),
		events: NewQueue[ChangeEvent](min(64, cfg.QueueSize), cfg.QueueSize),
		wake:   make(chan struct{}, 1),
	}
	empty := make(map[string]fileStat)
	w.statCache.Store(&empty)
	return w, nil
}

// Watch adds path to the watch list. The file does not need to exist yet;
// its creation is reported as a create event.
func (w *Watcher) Watch(path string, callback UpdateCallback) error {
	if callback == nil {
		return errors.New(ErrCodeInvalidConfig, "callback cannot be nil")
	}
	absPath, err := w.securePath(path)
	if err != nil {
		return err
	}

	w.filesMu.Lock()
	defer w.filesMu.Unlock()

	if _, exists := w.files[absPath]; !exists && len(w.files) >= w.config.MaxWatchedFiles {
		w.config.Audit.LogSecurityEvent("watch_limit_exceeded", "maximum watched files exceeded",
			map[string]any{"path": absPath, "max_files": w.config.MaxWatchedFiles})
		return errors.New(ErrCodeInvalidConfig, "maximum watched files exceeded").
			WithContext("max_files", w.config.MaxWatchedFiles).
			WithContext("current_files", len(w.files))
	}

	initial, err := w.getStat(absPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, ErrCodeFileNotFound, "failed to stat file").
			WithContext("path", absPath)
	}

	w.files[absPath] = &watchedFile{path: absPath, callback: callback, lastStat: initial}
	w.config.Audit.LogFileWatch(AuditWatchStart, absPath)
	w.config.Logger.Debug("watching file", "path", absPath, "exists", initial.exists)
	return nil
}

// securePath validates path before and after making it absolute, and
// validates the target of a symlink.
func (w *Watcher) securePath(path string) (string, error) {
	if err := ValidateSecurePath(path); err != nil {
		w.config.Audit.LogSecurityEvent("path_traversal_attempt", "rejected unsafe watch path",
			map[string]any{"rejected_path": path, "reason": err.Error()})
		return "", errors.Wrap(err, ErrCodeInvalidConfig, "invalid or unsafe file path").
			WithContext("path", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, ErrCodeInvalidConfig, "invalid file path").
			WithContext("path", path)
	}
	if err := ValidateSecurePath(absPath); err != nil {
		return "", errors.Wrap(err, ErrCodeInvalidConfig, "resolved path is unsafe").
			WithContext("absolute_path", absPath)
	}

	if real, err := filepath.EvalSymlinks(absPath); err == nil && real != absPath {
		if err := ValidateSecurePath(real); err != nil || isSystemDirectory(real) {
			w.config.Audit.LogSecurityEvent("symlink_traversal_attempt", "symlink points to unsafe location",
				map[string]any{"symlink_path": absPath, "resolved_path": real})
			return "", errors.New(ErrCodeInvalidConfig, "symlink target is unsafe").
				WithContext("symlink_path", absPath).
				WithContext("resolved_path", real)
		}
	}
	return absPath, nil
}

func isSystemDirectory(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(path, "/etc/") ||
		strings.HasPrefix(path, "/proc/") ||
		strings.HasPrefix(path, "/sys/") ||
		strings.HasPrefix(path, "/dev/") ||
		strings.Contains(lower, "windows\\system32") ||
		strings.Contains(lower, "program files")
}

// Unwatch removes path from the watch list.
func (w *Watcher) Unwatch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "invalid file path").
			WithContext("path", path)
	}

	w.filesMu.Lock()
	delete(w.files, absPath)
	w.filesMu.Unlock()

	w.removeFromCache(absPath)
	return nil
}

// Start launches the poll loop and the event consumer. A stopped watcher
// can be started again.
func (w *Watcher) Start() error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "watcher is already running")
	}

	w.stopPoll, w.stopCons = make(chan struct{}), make(chan struct{})
	w.pollDone, w.consDone = make(chan struct{}), make(chan struct{})
	go w.consumeLoop(w.stopCons, w.consDone)
	go w.watchLoop(w.stopPoll, w.pollDone)
	return nil
}

// Stop ends polling, delivers the events already queued and waits for both
// goroutines to exit.
func (w *Watcher) Stop() error {
	w.lifeMu.Lock()
	if !w.running.CompareAndSwap(true, false) {
		w.lifeMu.Unlock()
		return errors.New(ErrCodeWatcherStopped, "watcher is not running")
	}

	// poller first, so the consumer sees every event of the last cycle
	close(w.stopPoll)
	<-w.pollDone
	close(w.stopCons)
	<-w.consDone
	w.lifeMu.Unlock()

	w.config.Audit.LogFileWatch(AuditWatchStop, "")
	return nil
}

// Close stops the watcher if it is running.
func (w *Watcher) Close() error {
	if err := w.Stop(); err != nil && !HasCode(err, ErrCodeWatcherStopped) {
		return err
	}
	return nil
}

// IsRunning reports whether the watcher has been started and not stopped.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// WatchedFiles returns the number of watched files.
func (w *Watcher) WatchedFiles() int {
	w.filesMu.RLock()
	defer w.filesMu.RUnlock()
	return len(w.files)
}

// Events exposes the change event queue for metrics collection.
func (w *Watcher) Events() *Queue[ChangeEvent] {
	return w.events
}

// Delivered returns the number of events handed to callbacks.
func (w *Watcher) Delivered() int64 { return w.delivered.Load() }

// Panics returns the number of callbacks that panicked.
func (w *Watcher) Panics() int64 { return w.panics.Load() }

// getStat returns the cached stat of path, refreshing it once expired.
func (w *Watcher) getStat(path string) (fileStat, error) {
	if cached, ok := (*w.statCache.Load())[path]; ok && !cached.isExpired(w.config.CacheTTL) {
		return cached, nil
	}

	info, err := os.Stat(path)
	stat := fileStat{cachedAt: timecache.CachedTimeNano(), exists: err == nil}
	if err == nil {
		stat.modTime = info.ModTime()
		stat.size = info.Size()
	}
	w.updateCache(path, stat)
	return stat, err
}

// updateCache swaps in a copy of the cache with path updated.
func (w *Watcher) updateCache(path string, stat fileStat) {
	for {
		oldPtr := w.statCache.Load()
		next := make(map[string]fileStat, len(*oldPtr)+1)
		for k, v := range *oldPtr {
			next[k] = v
		}
		next[path] = stat
		if w.statCache.CompareAndSwap(oldPtr, &next) {
			return
		}
	}
}

func (w *Watcher) removeFromCache(path string) {
	for {
		oldPtr := w.statCache.Load()
		if _, ok := (*oldPtr)[path]; !ok {
			return
		}
		next := make(map[string]fileStat, len(*oldPtr))
		for k, v := range *oldPtr {
			if k != path {
				next[k] = v
			}
		}
		if w.statCache.CompareAndSwap(oldPtr, &next) {
			return
		}
	}
}

// checkFile compares the current stat with the last one and queues an
// event on change.
func (w *Watcher) checkFile(wf *watchedFile) {
	current, err := w.getStat(wf.path)
	if err != nil {
		if os.IsNotExist(err) {
			if wf.lastStat.exists {
				w.publish(ChangeEvent{Path: wf.path, IsDelete: true})
				wf.lastStat = current
			}
			return
		}
		w.reportError(errors.Wrap(err, ErrCodeFileNotFound, "failed to stat file").
			WithContext("path", wf.path), wf.path)
		return
	}

	switch {
	case !wf.lastStat.exists:
		w.publish(ChangeEvent{Path: wf.path, ModTime: current.modTime, Size: current.size, IsCreate: true})
	case !current.modTime.Equal(wf.lastStat.modTime) || current.size != wf.lastStat.size:
		w.publish(ChangeEvent{Path: wf.path, ModTime: current.modTime, Size: current.size, IsModify: true})
	}
	wf.lastStat = current
}

func (w *Watcher) publish(event ChangeEvent) {
	before := w.events.Dropped()
	w.events.Push(event)
	if w.events.Dropped() != before {
		w.config.Logger.Warn("change event queue full, dropped oldest event", "path", event.Path)
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) reportError(err error, path string) {
	if w.config.ErrorHandler != nil {
		w.config.ErrorHandler(err, path)
		return
	}
	w.config.Logger.Error("watcher error", "path", path, "error", err)
}

func (w *Watcher) watchLoop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			w.pollFiles()
		}
	}
}

// consumeLoop is the single consumer of the event queue.
func (w *Watcher) consumeLoop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		w.drain()
		select {
		case <-w.wake:
		case <-stopCh:
			w.drain()
			return
		}
	}
}

func (w *Watcher) drain() {
	for w.events.HasElement() {
		w.dispatch(w.events.TakeCopy())
	}
}

func (w *Watcher) dispatch(event ChangeEvent) {
	w.filesMu.RLock()
	wf, ok := w.files[event.Path]
	w.filesMu.RUnlock()
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.config.Audit.LogFileWatch(AuditCallbackPanic, event.Path)
			w.reportError(errors.New(ErrCodeCallbackFailed, fmt.Sprintf("watch callback panicked: %v", r)).
				WithContext("path", event.Path), event.Path)
			w.panics.Add(1)
		}
	}()

	wf.callback(event)
	w.delivered.Add(1)
	w.config.Audit.LogFileWatch(AuditFileChanged, event.Path)
}

// pollFiles checks every watched file, in parallel for more than one file
// with at most 8 concurrent checks.
func (w *Watcher) pollFiles() {
	w.filesMu.RLock()
	w.filesBuffer = w.filesBuffer[:0]
	for _, wf := range w.files {
		w.filesBuffer = append(w.filesBuffer, wf)
	}
	files := w.filesBuffer
	w.filesMu.RUnlock()

	if len(files) == 1 {
		w.checkFile(files[0])
		return
	}

	const maxConcurrency = 8
	fileCh := make(chan *watchedFile, len(files))
	for _, wf := range files {
		fileCh <- wf
	}
	close(fileCh)

	var wg sync.WaitGroup
	for i := 0; i < min(maxConcurrency, len(files)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wf := range fileCh {
				w.checkFile(wf)
			}
		}()
	}
	wg.Wait()
}

// ClearCache drops every cached stat result.
func (w *Watcher) ClearCache() {
	empty := make(map[string]fileStat)
	w.statCache.Store(&empty)
}

// CacheStats describes the stat cache.
type CacheStats struct {
	Entries   int
	OldestAge time.Duration
	NewestAge time.Duration
}

// GetCacheStats returns the size and age range of the stat cache.
func (w *Watcher) GetCacheStats() CacheStats {
	cache := *w.statCache.Load()
	if len(cache) == 0 {
		return CacheStats{}
	}

	now := timecache.CachedTimeNano()
	var oldest, newest int64
	first := true
	for _, stat := range cache {
		if first || stat.cachedAt < oldest {
			oldest = stat.cachedAt
		}
		if first || stat.cachedAt > newest {
			newest = stat.cachedAt
		}
		first = false
	}
	return CacheStats{
		Entries:   len(cache),
		OldestAge: time.Duration(now - oldest),
		NewestAge: time.Duration(now - newest),
	}
}

// WatchFile starts a watcher that reloads the store from its settings file
// on every create or modify event. The watcher inherits the store's audit
// and logger unless cfg sets them.
func (sm *SettingsManager) WatchFile(cfg WatcherConfig) (*Watcher, error) {
	if sm.filePath == "" {
		return nil, errors.New(ErrCodeInvalidConfig, "no settings file configured")
	}
	if cfg.Audit == nil {
		cfg.Audit = sm.audit
	}
	if cfg.Logger == nil {
		cfg.Logger = sm.logger
	}

	w, err := NewWatcher(cfg)
	if err != nil {
		return nil, err
	}
	err = w.Watch(sm.filePath, func(e ChangeEvent) {
		if e.IsDelete {
			sm.logger.Warn("settings file deleted, keeping current values", "path", e.Path)
			return
		}
		if err := sm.ReadFromFile(true); err != nil {
			w.reportError(err, e.Path)
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
