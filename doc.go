// Package hestia provides the small building blocks most services end up
// rewriting: a uniform text rendering and parsing layer, number conversion
// helpers, a fixed ring buffer and a bounded queue, a colored line logger,
// and a typed settings store that persists to plain files and reloads them
// when they change.
//
// # Rendering and Parsing
//
// Render turns any value into text following one set of rules: scalars in
// their shortest form, tuples as "(a, b)", sequences as "[a, b]" and maps
// as "{k: v}" with sorted keys. Parse reads the scalar forms back:
//
//	s := hestia.MustRender(map[string][]int{"ports": {80, 443}}) // {ports: [80, 443]}
//	n, err := hestia.Parse[int]("8080")
//
// Types with their own text form implement fmt.Stringer or register a
// renderer with RegisterRenderer; RegisterParser adds parsing for types
// Parse does not know.
//
// # Numbers
//
// IsInt, IsUint and IsFloat classify text; IntOr, DoubleOr and friends
// parse with a fallback. ToHexString, ToOctString and ToBinString format
// integers with a prefix and a minimum width, and the From* functions
// read them back:
//
//	hestia.ToHexString[uint16](255)    // 0x00ff
//	v, _ := hestia.FromBinString[uint8]("0b101")
//
// # Containers
//
// RingBuffer keeps the last N values and overwrites the oldest; it is meant
// for a single goroutine. Queue is a FIFO that grows up to a maximum size
// and then either drops the oldest element or rejects new ones. Any number
// of goroutines may push into a Queue.
//
// # Settings
//
// A SettingsManager stores string values by key and converts them on read:
//
//	sm, err := hestia.NewSettingsManager(hestia.SettingsConfig{
//		FilePath:           "app.yaml",
//		ReadFileOnCreation: true,
//		WriteFileOnClose:   true,
//		CacheTypes:         []hestia.CacheType{hestia.CacheTypeOf[int]()},
//	})
//	port := hestia.GetAsOr(sm, "server.port", 8080)
//
// Keys can be restricted with AllowList or AllowRange, observed with
// AddCallback and overridden from the environment (LoadEnv) or the command
// line (NewFlagOverlay). Files are read and written as key = value text,
// YAML or JSON depending on the extension. WatchFile reloads the store
// whenever the file changes on disk.
//
// # Observability
//
// Log writes "time: prefix: type: message" lines to the console, with
// lipgloss colors on terminals, and buffers them to a log file. SlogHandler
// lets log/slog code write through the same Log. AuditLogger records every
// settings change in SQLite or JSONL with a tamper-evident checksum, and
// QueueCollector and SettingsCollector export Prometheus metrics.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package hestia
