// settings_binder.go: Fluent binding of settings keys to Go variables
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"time"

	"github.com/agilira/go-errors"
)

// binding is one deferred assignment. assign returns a conversion error
// when the stored text does not parse.
type binding struct {
	key    string
	assign func(text string, found bool) error
}

// Binder collects bindings from settings keys to variables and assigns
// them all in Apply. Missing keys leave the default in the variable.
//
//	var port int
//	var debug bool
//	err := sm.Bind().Int(&port, "port", 8080).Bool(&debug, "debug", false).Apply()
type Binder struct {
	sm       *SettingsManager
	bindings []binding
}

// Bind starts a new Binder over the store.
func (sm *SettingsManager) Bind() *Binder {
	return &Binder{sm: sm, bindings: make([]binding, 0, 8)}
}

// String binds a string key.
func (b *Binder) String(target *string, key string, def string) *Binder {
	return bindWith(b, target, key, def, func(s string) (string, error) { return s, nil })
}

// Int binds an int key.
func (b *Binder) Int(target *int, key string, def int) *Binder {
	return bindWith(b, target, key, def, Parse[int])
}

// Int64 binds an int64 key.
func (b *Binder) Int64(target *int64, key string, def int64) *Binder {
	return bindWith(b, target, key, def, Parse[int64])
}

// Uint binds a uint key.
func (b *Binder) Uint(target *uint, key string, def uint) *Binder {
	return bindWith(b, target, key, def, Parse[uint])
}

// Float64 binds a float64 key.
func (b *Binder) Float64(target *float64, key string, def float64) *Binder {
	return bindWith(b, target, key, def, Parse[float64])
}

// Bool binds a bool key. Only the strict literals parse.
func (b *Binder) Bool(target *bool, key string, def bool) *Binder {
	return bindWith(b, target, key, def, Parse[bool])
}

// Duration binds a key holding a time.ParseDuration string such as "5s".
func (b *Binder) Duration(target *time.Duration, key string, def time.Duration) *Binder {
	return bindWith(b, target, key, def, time.ParseDuration)
}

// BindValue binds a key of any type T using Parse, so types registered
// with RegisterParser work too.
func BindValue[T any](b *Binder, target *T, key string, def T) *Binder {
	return bindWith(b, target, key, def, Parse[T])
}

func bindWith[T any](b *Binder, target *T, key string, def T, parse func(string) (T, error)) *Binder {
	b.bindings = append(b.bindings, binding{
		key: key,
		assign: func(text string, found bool) error {
			if !found {
				*target = def
				return nil
			}
			v, err := parse(text)
			if err != nil {
				*target = def
				return err
			}
			*target = v
			return nil
		},
	})
	return b
}

// Apply assigns every binding from a single snapshot of the store. A value
// that does not parse leaves the default in its variable; the first such
// error is returned once all bindings ran.
func (b *Binder) Apply() error {
	values := b.sm.Map()
	var firstErr error
	for _, bd := range b.bindings {
		text, found := values[bd.key]
		if err := bd.assign(text, found); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, ErrCodeConversionFailed, "failed to bind key").
				WithContext("key", bd.key).
				WithContext("value", text)
		}
	}
	return firstErr
}

// Len returns the number of collected bindings.
func (b *Binder) Len() int { return len(b.bindings) }
