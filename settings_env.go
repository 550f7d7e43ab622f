// settings_env.go: Environment variable overlay for settings and watcher config
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// EnvKey maps a settings key to its environment variable name under prefix.
// "server.read-timeout" with prefix "app" becomes APP_SERVER_READ_TIMEOUT.
func EnvKey(prefix, key string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(strings.TrimSuffix(prefix, "_")) + "_" + name
}

// LoadEnv overrides known keys from the environment. Only keys already in
// the store are looked up. Values go through Set, so restrictions and
// callbacks apply. It returns the number of keys applied and the first
// error met; later keys are still processed.
func (sm *SettingsManager) LoadEnv(prefix string) (int, error) {
	applied := 0
	var firstErr error
	for _, key := range sm.Keys() {
		value, ok := os.LookupEnv(EnvKey(prefix, key))
		if !ok {
			continue
		}
		if cur, err := sm.Get(key); err == nil && cur == value {
			continue
		}
		if err := sm.Set(key, value); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, ErrCodeInvalidConfig, "environment override failed").
					WithContext("variable", EnvKey(prefix, key))
			}
			continue
		}
		applied++
	}
	return applied, firstErr
}

// WatcherConfigFromEnv reads HESTIA_POLL_INTERVAL, HESTIA_CACHE_TTL,
// HESTIA_MAX_WATCHED_FILES and HESTIA_EVENT_QUEUE_SIZE on top of base.
// Malformed values are errors rather than silently ignored.
func WatcherConfigFromEnv(base WatcherConfig) (WatcherConfig, error) {
	cfg := base
	if v := os.Getenv("HESTIA_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return base, errors.New(ErrCodeInvalidConfig, "invalid HESTIA_POLL_INTERVAL format").
				WithContext("value", v)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("HESTIA_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return base, errors.New(ErrCodeInvalidConfig, "invalid HESTIA_CACHE_TTL format").
				WithContext("value", v)
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("HESTIA_MAX_WATCHED_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, errors.New(ErrCodeInvalidConfig, "invalid HESTIA_MAX_WATCHED_FILES value").
				WithContext("value", v)
		}
		cfg.MaxWatchedFiles = n
	}
	if v := os.Getenv("HESTIA_EVENT_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return base, errors.New(ErrCodeInvalidConfig, "invalid HESTIA_EVENT_QUEUE_SIZE value").
				WithContext("value", v)
		}
		cfg.QueueSize = n
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// parseBool accepts true/false, 1/0, yes/no, on/off and enabled/disabled.
// Anything else is false.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}

// GetEnvWithDefault returns the variable or defaultValue when unset or empty.
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDurationWithDefault returns the variable as a duration or defaultValue.
func GetEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvIntWithDefault returns the variable as an int or defaultValue.
func GetEnvIntWithDefault(key string, defaultValue int) int {
	return IntOr(os.Getenv(key), defaultValue)
}

// GetEnvBoolWithDefault returns the variable as a bool or defaultValue.
func GetEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value)
	}
	return defaultValue
}
