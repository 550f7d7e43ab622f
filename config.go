// config.go: Watcher configuration and defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"log/slog"
	"time"

	"github.com/agilira/go-errors"
)

const (
	minPollInterval        = 10 * time.Millisecond
	maxWatchedFilesLimit   = 10000
	defaultPollInterval    = 5 * time.Second
	defaultMaxWatchedFiles = 100
	defaultEventQueueSize  = 1024
)

// WatcherConfig configures a Watcher. Zero fields take the defaults
// applied by WithDefaults.
type WatcherConfig struct {
	// PollInterval is how often watched files are checked.
	// Default: 5 seconds
	PollInterval time.Duration

	// CacheTTL is how long os.Stat results are reused.
	// Default: PollInterval / 2, and never more than PollInterval
	CacheTTL time.Duration

	// MaxWatchedFiles limits the number of watched files.
	// Default: 100
	MaxWatchedFiles int

	// QueueSize bounds the change event queue. When the consumer falls
	// behind the oldest events are dropped.
	// Default: 1024
	QueueSize int

	// ErrorHandler receives stat and reload errors. If nil they are logged.
	ErrorHandler ErrorHandler

	// Audit receives watch_start, file_changed and callback_panic events.
	Audit *AuditLogger

	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger
}

// WithDefaults applies defaults to unset fields.
func (c WatcherConfig) WithDefaults() WatcherConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.CacheTTL <= 0 || c.CacheTTL > c.PollInterval {
		c.CacheTTL = c.PollInterval / 2
	}
	if c.MaxWatchedFiles <= 0 {
		c.MaxWatchedFiles = defaultMaxWatchedFiles
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultEventQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Validate rejects explicitly set values that cannot work. Zero values are
// accepted since WithDefaults replaces them.
func (c WatcherConfig) Validate() error {
	if c.PollInterval < 0 || (c.PollInterval > 0 && c.PollInterval < minPollInterval) {
		return errors.New(ErrCodeInvalidConfig, "poll interval too small").
			WithContext("poll_interval", c.PollInterval.String()).
			WithContext("min", minPollInterval.String())
	}
	if c.CacheTTL < 0 {
		return errors.New(ErrCodeInvalidConfig, "cache TTL cannot be negative").
			WithContext("cache_ttl", c.CacheTTL.String())
	}
	if c.MaxWatchedFiles < 0 || c.MaxWatchedFiles > maxWatchedFilesLimit {
		return errors.New(ErrCodeInvalidConfig, "max watched files out of range").
			WithContext("max_watched_files", c.MaxWatchedFiles).
			WithContext("limit", maxWatchedFilesLimit)
	}
	if c.QueueSize < 0 {
		return errors.New(ErrCodeInvalidConfig, "queue size cannot be negative").
			WithContext("queue_size", c.QueueSize)
	}
	return nil
}
