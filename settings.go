// settings.go: Typed settings store with restrictions, callbacks and persistence
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
)

// CacheType registers a type whose parsed values the store keeps cached.
// Build one with CacheTypeOf.
type CacheType struct {
	typ   reflect.Type
	parse func(string) (any, error)
}

// CacheTypeOf returns the CacheType for T. T must be parseable by Parse.
func CacheTypeOf[T any]() CacheType {
	return CacheType{
		typ: reflect.TypeFor[T](),
		parse: func(s string) (any, error) {
			return Parse[T](s)
		},
	}
}

func (c CacheType) String() string {
	if c.typ == nil {
		return "<nil>"
	}
	return c.typ.String()
}

// DisallowedPolicy decides what Set does with a value that is not allowed.
type DisallowedPolicy int

const (
	// PolicyReject makes Set return a HESTIA_VALUE_NOT_ALLOWED error.
	PolicyReject DisallowedPolicy = iota
	// PolicyIgnore drops the value silently.
	PolicyIgnore
)

// SettingsConfig configures a SettingsManager.
type SettingsConfig struct {
	// FilePath is the settings file used by ReadFromFile and WriteToFile.
	FilePath string

	// Format is "kv", "yaml" or "json". Empty means detect from FilePath.
	Format string

	// InitialValues seed the store. Values read from the file overwrite them.
	InitialValues map[string]string

	// CacheTypes lists the types GetAs and SetAs may use. string is
	// always registered.
	CacheTypes []CacheType

	// InsertFallbacks stores the fallback of GetOr/GetAsOr when the key
	// has no value.
	InsertFallbacks bool

	ReadFileOnCreation bool
	WriteFileOnClose   bool

	DisallowedPolicy DisallowedPolicy

	// Audit receives change events when set.
	Audit *AuditLogger

	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger
}

// SettingsCallback is invoked with the new value after a key changes.
type SettingsCallback func(value string) error

// SettingsStats is a point-in-time view of the store used by metrics.
type SettingsStats struct {
	Entries          int
	CachedValues     int
	Restrictions     int
	Callbacks        int
	CallbackFailures int64
	RejectedSets     int64
}

// SettingsManager is a string keyed store of string values. Values can be
// read back as any registered cache type, restricted to allowed values and
// observed through per-key callbacks. It is safe for concurrent use;
// callbacks run outside the internal lock so they may call back into the
// manager.
type SettingsManager struct {
	mu         sync.RWMutex
	values     map[string]string
	cache      map[string]map[reflect.Type]any
	cacheTypes map[reflect.Type]CacheType
	allowed    map[string]AllowedValues
	callbacks  map[string]SettingsCallback

	filePath         string
	format           SettingsFormat
	insertFallbacks  bool
	writeFileOnClose bool
	policy           DisallowedPolicy

	audit  *AuditLogger
	logger *slog.Logger

	callbackFailures atomic.Int64
	rejectedSets     atomic.Int64
	closeOnce        sync.Once
}

// NewSettingsManager creates a store from cfg. With ReadFileOnCreation the
// file is merged in, and a file that cannot be read fails creation with
// HESTIA_FILE_IO.
func NewSettingsManager(cfg SettingsConfig) (*SettingsManager, error) {
	format := DetectSettingsFormat(cfg.FilePath)
	if cfg.Format != "" {
		f, err := ParseSettingsFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sm := &SettingsManager{
		values:           make(map[string]string, len(cfg.InitialValues)),
		cache:            make(map[string]map[reflect.Type]any),
		cacheTypes:       make(map[reflect.Type]CacheType, len(cfg.CacheTypes)+1),
		allowed:          make(map[string]AllowedValues),
		callbacks:        make(map[string]SettingsCallback),
		filePath:         cfg.FilePath,
		format:           format,
		insertFallbacks:  cfg.InsertFallbacks,
		writeFileOnClose: cfg.WriteFileOnClose,
		policy:           cfg.DisallowedPolicy,
		audit:            cfg.Audit,
		logger:           logger,
	}

	str := CacheTypeOf[string]()
	sm.cacheTypes[str.typ] = str
	for _, ct := range cfg.CacheTypes {
		if ct.typ == nil {
			return nil, errors.New(ErrCodeInvalidConfig, "zero CacheType; use CacheTypeOf")
		}
		sm.cacheTypes[ct.typ] = ct
	}

	for k, v := range cfg.InitialValues {
		sm.values[k] = v
	}

	if cfg.ReadFileOnCreation {
		if cfg.FilePath == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "ReadFileOnCreation requires FilePath")
		}
		if err := sm.ReadFromFile(true); err != nil {
			return nil, err
		}
	}
	return sm, nil
}

// Get returns the value stored for key.
func (sm *SettingsManager) Get(key string) (string, error) {
	sm.mu.RLock()
	v, ok := sm.values[key]
	sm.mu.RUnlock()
	if !ok {
		return "", keyNotFound(key)
	}
	return v, nil
}

// GetOr returns the value for key or fallback when absent. With
// InsertFallbacks an allowed fallback is stored and audited; the key's
// callback is not run.
func (sm *SettingsManager) GetOr(key, fallback string) string {
	sm.mu.Lock()
	if v, ok := sm.values[key]; ok {
		sm.mu.Unlock()
		return v
	}
	inserted := sm.insertFallbacks && sm.allowedLocked(key, fallback)
	if inserted {
		sm.values[key] = fallback
	}
	sm.mu.Unlock()

	if inserted {
		sm.audit.LogSettingChange(sm.filePath, key, "", fallback)
	}
	return fallback
}

// GetAs returns the value for key converted to T. The converted value is
// cached until the key changes. T must be a registered cache type.
func GetAs[T any](sm *SettingsManager, key string) (T, error) {
	var zero T
	typ := reflect.TypeFor[T]()

	sm.mu.RLock()
	text, ok := sm.values[key]
	cached, hit := sm.cache[key][typ]
	ct, registered := sm.cacheTypes[typ]
	sm.mu.RUnlock()

	if !ok {
		return zero, keyNotFound(key)
	}
	if !registered {
		return zero, errors.New(ErrCodeTypeNotRegistered, "type is not a registered cache type").
			WithContext("type", typ.String()).WithContext("key", key)
	}
	if hit {
		return cached.(T), nil
	}

	parsed, err := ct.parse(text)
	if err != nil {
		return zero, errors.Wrap(err, ErrCodeConversionFailed, "cannot convert setting").
			WithContext("key", key).WithContext("type", typ.String())
	}
	value := parsed.(T)

	sm.mu.Lock()
	// the value may have changed while parsing
	if cur, ok := sm.values[key]; ok && cur == text {
		sm.cacheLocked(key, typ, value)
	}
	sm.mu.Unlock()
	return value, nil
}

// GetAsOr is GetAs returning fallback when the key is absent or cannot be
// converted. With InsertFallbacks an allowed fallback is stored, cached and
// audited; the key's callback is not run.
func GetAsOr[T any](sm *SettingsManager, key string, fallback T) T {
	v, err := GetAs[T](sm, key)
	if err == nil {
		return v
	}
	if !HasCode(err, ErrCodeKeyNotFound) || !sm.insertFallbacks {
		return fallback
	}

	text, rerr := Render(fallback)
	if rerr != nil {
		return fallback
	}
	typ := reflect.TypeFor[T]()

	sm.mu.Lock()
	if _, exists := sm.values[key]; exists {
		sm.mu.Unlock()
		return fallback
	}
	if av, restricted := sm.allowed[key]; restricted && !av.AllowsValue(fallback) {
		sm.mu.Unlock()
		return fallback
	}
	sm.values[key] = text
	if _, registered := sm.cacheTypes[typ]; registered {
		sm.cacheLocked(key, typ, fallback)
	}
	sm.mu.Unlock()

	sm.audit.LogSettingChange(sm.filePath, key, "", text)
	return fallback
}

// Set stores value under key, drops every cached conversion of the key and
// runs the key's callback. A failing callback does not roll the value back.
func (sm *SettingsManager) Set(key, value string) error {
	sm.mu.Lock()
	if !sm.allowedLocked(key, value) {
		sm.mu.Unlock()
		return sm.disallowed(key, value)
	}
	old, _ := sm.commitLocked(key, value)
	cb := sm.callbacks[key]
	sm.mu.Unlock()

	sm.audit.LogSettingChange(sm.filePath, key, old, value)
	return sm.runCallback(key, value, cb)
}

// SetAs renders value and stores it under key. When T is a registered
// cache type the typed value is cached directly.
func SetAs[T any](sm *SettingsManager, key string, value T) error {
	text, err := Render(value)
	if err != nil {
		return err
	}
	typ := reflect.TypeFor[T]()

	sm.mu.Lock()
	if av, restricted := sm.allowed[key]; restricted && !av.AllowsValue(value) {
		sm.mu.Unlock()
		return sm.disallowed(key, text)
	}
	old, _ := sm.commitLocked(key, text)
	if _, registered := sm.cacheTypes[typ]; registered {
		sm.cacheLocked(key, typ, value)
	}
	cb := sm.callbacks[key]
	sm.mu.Unlock()

	sm.audit.LogSettingChange(sm.filePath, key, old, text)
	return sm.runCallback(key, text, cb)
}

// Erase removes key and reports whether it was present.
func (sm *SettingsManager) Erase(key string) bool {
	sm.mu.Lock()
	old, ok := sm.values[key]
	if ok {
		delete(sm.values, key)
		delete(sm.cache, key)
	}
	sm.mu.Unlock()

	if ok {
		sm.audit.LogSettingErased(sm.filePath, key, old)
	}
	return ok
}

// Has reports whether key has a value.
func (sm *SettingsManager) Has(key string) bool {
	sm.mu.RLock()
	_, ok := sm.values[key]
	sm.mu.RUnlock()
	return ok
}

// Keys returns the stored keys in sorted order.
func (sm *SettingsManager) Keys() []string {
	sm.mu.RLock()
	keys := make([]string, 0, len(sm.values))
	for k := range sm.values {
		keys = append(keys, k)
	}
	sm.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (sm *SettingsManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.values)
}

// Map returns a copy of the stored values.
func (sm *SettingsManager) Map() map[string]string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make(map[string]string, len(sm.values))
	for k, v := range sm.values {
		out[k] = v
	}
	return out
}

// String renders the store as "{k1: v1, k2: v2}" in key order.
func (sm *SettingsManager) String() string {
	return MustRender(sm.Map())
}

// FilePath returns the configured settings file.
func (sm *SettingsManager) FilePath() string { return sm.filePath }

// Format returns the settings file format.
func (sm *SettingsManager) Format() SettingsFormat { return sm.format }

// SetAllowedValues restricts key to av. A current value that is no longer
// allowed is erased.
func (sm *SettingsManager) SetAllowedValues(key string, av AllowedValues) error {
	if err := av.Validate(); err != nil {
		return errors.Wrap(err, ErrCodeInvalidSpec, "invalid allowed values").
			WithContext("key", key)
	}

	sm.mu.Lock()
	sm.allowed[key] = av
	old, had := sm.values[key]
	erase := had && !av.Allows(old)
	if erase {
		delete(sm.values, key)
		delete(sm.cache, key)
	}
	sm.mu.Unlock()

	sm.audit.LogAllowedValuesChanged(sm.filePath, key, av.String())
	if erase {
		sm.logger.Info("erased setting no longer allowed", "key", key, "value", old, "allowed", av.String())
		sm.audit.LogSettingErased(sm.filePath, key, old)
	}
	return nil
}

// RemoveAllowedValues lifts the restriction on key.
func (sm *SettingsManager) RemoveAllowedValues(key string) {
	sm.mu.Lock()
	_, had := sm.allowed[key]
	delete(sm.allowed, key)
	sm.mu.Unlock()
	if had {
		sm.audit.LogAllowedValuesChanged(sm.filePath, key, "none")
	}
}

// IsAllowed reports whether value would be accepted for key.
func (sm *SettingsManager) IsAllowed(key, value string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.allowedLocked(key, value)
}

// AllowedValuesFor returns the restriction installed for key, if any.
func (sm *SettingsManager) AllowedValuesFor(key string) (AllowedValues, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	av, ok := sm.allowed[key]
	return av, ok
}

// AddCallback sets the callback for key, replacing any previous one.
func (sm *SettingsManager) AddCallback(key string, fn SettingsCallback) {
	sm.mu.Lock()
	sm.callbacks[key] = fn
	sm.mu.Unlock()
}

// RemoveCallback removes the callback for key.
func (sm *SettingsManager) RemoveCallback(key string) {
	sm.mu.Lock()
	delete(sm.callbacks, key)
	sm.mu.Unlock()
}

// ReadFromFile merges the settings file into the store, file values
// overwriting stored ones. With checkValidity, values that are not allowed
// are skipped. Callbacks run for every key whose value changed; the first
// callback error is returned after all callbacks ran.
func (sm *SettingsManager) ReadFromFile(checkValidity bool) error {
	if sm.filePath == "" {
		return errors.New(ErrCodeFileIO, "no settings file configured")
	}
	entries, err := LoadSettingsFile(sm.filePath, sm.format)
	if err != nil {
		return err
	}

	type change struct {
		key, value string
		cb         SettingsCallback
	}
	var changes []change
	var skipped []string

	sm.mu.Lock()
	for k, v := range entries {
		if checkValidity && !sm.allowedLocked(k, v) {
			skipped = append(skipped, k)
			continue
		}
		if old, ok := sm.values[k]; ok && old == v {
			continue
		}
		sm.commitLocked(k, v)
		changes = append(changes, change{key: k, value: v, cb: sm.callbacks[k]})
	}
	sm.mu.Unlock()

	for _, k := range skipped {
		sm.logger.Warn("skipping disallowed value from settings file", "key", k, "path", sm.filePath)
		sm.audit.LogSettingRejected(sm.filePath, k, entries[k], "value from file not allowed")
	}
	sm.audit.LogSettingsFile(AuditSettingsLoaded, sm.filePath, len(entries))
	sm.logger.Debug("settings file loaded", "path", sm.filePath, "entries", len(entries), "changed", len(changes))

	sort.Slice(changes, func(i, j int) bool { return changes[i].key < changes[j].key })
	var firstErr error
	for _, c := range changes {
		if err := sm.runCallback(c.key, c.value, c.cb); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteToFile atomically writes the store to the settings file.
func (sm *SettingsManager) WriteToFile() error {
	if sm.filePath == "" {
		return errors.New(ErrCodeFileIO, "no settings file configured")
	}
	values := sm.Map()
	if err := SaveSettingsFile(sm.filePath, sm.format, values); err != nil {
		return err
	}
	sm.audit.LogSettingsFile(AuditSettingsSaved, sm.filePath, len(values))
	return nil
}

// Close writes the file when WriteFileOnClose is set and flushes the audit
// logger. It is safe to call more than once; only the first call writes.
func (sm *SettingsManager) Close() error {
	var err error
	sm.closeOnce.Do(func() {
		if sm.writeFileOnClose {
			err = sm.WriteToFile()
		}
		if ferr := sm.audit.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	})
	return err
}

// Stats returns counters for metrics collection.
func (sm *SettingsManager) Stats() SettingsStats {
	sm.mu.RLock()
	cached := 0
	for _, m := range sm.cache {
		cached += len(m)
	}
	stats := SettingsStats{
		Entries:      len(sm.values),
		CachedValues: cached,
		Restrictions: len(sm.allowed),
		Callbacks:    len(sm.callbacks),
	}
	sm.mu.RUnlock()
	stats.CallbackFailures = sm.callbackFailures.Load()
	stats.RejectedSets = sm.rejectedSets.Load()
	return stats
}

func (sm *SettingsManager) allowedLocked(key, value string) bool {
	av, restricted := sm.allowed[key]
	return !restricted || av.Allows(value)
}

func (sm *SettingsManager) commitLocked(key, value string) (old string, existed bool) {
	old, existed = sm.values[key]
	sm.values[key] = value
	delete(sm.cache, key)
	return old, existed
}

func (sm *SettingsManager) cacheLocked(key string, typ reflect.Type, value any) {
	m := sm.cache[key]
	if m == nil {
		m = make(map[reflect.Type]any, 1)
		sm.cache[key] = m
	}
	m[typ] = value
}

func (sm *SettingsManager) disallowed(key, value string) error {
	sm.rejectedSets.Add(1)
	sm.audit.LogSettingRejected(sm.filePath, key, value, "value not allowed")
	if sm.policy == PolicyIgnore {
		sm.logger.Debug("ignoring disallowed value", "key", key, "value", value)
		return nil
	}
	return errors.New(ErrCodeValueNotAllowed, "value not allowed for key").
		WithContext("key", key).WithContext("value", value)
}

// runCallback invokes cb, turning an error or a panic into a
// HESTIA_CALLBACK_FAILED error.
func (sm *SettingsManager) runCallback(key, value string, cb SettingsCallback) (err error) {
	if cb == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(ErrCodeCallbackFailed, fmt.Sprintf("callback panicked: %v", r)).
				WithContext("key", key)
		}
		if err != nil {
			sm.callbackFailures.Add(1)
			sm.logger.Error("settings callback failed", "key", key, "error", err)
			sm.audit.LogCallbackFailed(sm.filePath, key, err)
		}
	}()
	if cerr := cb(value); cerr != nil {
		return errors.Wrap(cerr, ErrCodeCallbackFailed, "callback failed").WithContext("key", key)
	}
	return nil
}

func keyNotFound(key string) error {
	return errors.New(ErrCodeKeyNotFound, "key not found").WithContext("key", key)
}
