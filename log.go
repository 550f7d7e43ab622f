// log.go: Prefixed line logger with colored console output and buffered file storage
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// LogTimeLayout is the timestamp format at the start of every line.
const LogTimeLayout = "2006-01-02 15:04:05"

// Color selects the console color of a log prefix, type or message.
type Color int

const (
	ColorReset Color = iota
	ColorBlack
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightBlack
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightMagenta
	ColorBrightCyan
	ColorBrightWhite
)

// ANSI palette indices, bright colors are rendered bold as well
var colorCodes = [...]lipgloss.Color{
	ColorBlack:         "0",
	ColorRed:           "1",
	ColorGreen:         "2",
	ColorYellow:        "3",
	ColorBlue:          "4",
	ColorMagenta:       "5",
	ColorCyan:          "6",
	ColorWhite:         "7",
	ColorBrightBlack:   "8",
	ColorBrightRed:     "9",
	ColorBrightGreen:   "10",
	ColorBrightYellow:  "11",
	ColorBrightBlue:    "12",
	ColorBrightMagenta: "13",
	ColorBrightCyan:    "14",
	ColorBrightWhite:   "15",
}

// Sink receives every uncolored log line in addition to console and file.
type Sink interface {
	WriteLine(line string)
}

// LogConfig configures a Log.
type LogConfig struct {
	// LogFile is where stored lines are appended.
	LogFile string

	// ShowLog writes lines to Output.
	ShowLog bool

	// StoreLog keeps lines for LogFile.
	StoreLog bool

	Prefix      string
	PrefixColor Color

	// ClearLogfileOnRestart truncates LogFile when the Log is created.
	ClearLogfileOnRestart bool

	// WriteAfterLines is the number of buffered lines that triggers a
	// write to LogFile.
	WriteAfterLines int

	// Output receives console lines. Defaults to os.Stdout.
	Output io.Writer

	// Color forces colored (true) or plain (false) console output.
	// nil means color only when Output is a terminal.
	Color *bool
}

// DefaultLogConfig returns a config that shows and stores lines in
// logFile, flushing every 100 lines.
func DefaultLogConfig(logFile, prefix string) LogConfig {
	return LogConfig{
		LogFile:               logFile,
		ShowLog:               true,
		StoreLog:              logFile != "",
		Prefix:                prefix,
		ClearLogfileOnRestart: true,
		WriteAfterLines:       100,
	}
}

// WithDefaults fills unset fields.
func (c LogConfig) WithDefaults() LogConfig {
	if c.WriteAfterLines < 1 {
		c.WriteAfterLines = 100
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	return c
}

// Log writes "<time>: <prefix>: <message>" lines to the console and,
// buffered, to a file. All methods are safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	config  LogConfig
	out     io.Writer
	colored bool

	prefixStyle  lipgloss.Style
	renderer     *lipgloss.Renderer
	buffer       []string
	sinks        []Sink
	writeErr     error
	closed       bool
	linesWritten int64
}

// NewLog creates a Log. When storing, the log file path is validated and,
// with ClearLogfileOnRestart, truncated.
func NewLog(cfg LogConfig) (*Log, error) {
	cfg = cfg.WithDefaults()

	if cfg.StoreLog {
		if err := ValidateSecurePath(cfg.LogFile); err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid log file path")
		}
		if dir := filepath.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, errors.Wrap(err, ErrCodeFileIO, "failed to create log directory").
					WithContext("path", dir)
			}
		}
		if cfg.ClearLogfileOnRestart {
			if err := os.WriteFile(cfg.LogFile, nil, 0600); err != nil {
				return nil, errors.Wrap(err, ErrCodeFileIO, "failed to clear log file").
					WithContext("path", cfg.LogFile)
			}
		}
	}

	l := &Log{
		config:   cfg,
		out:      cfg.Output,
		colored:  wantsColor(cfg),
		renderer: lipgloss.NewRenderer(cfg.Output),
		buffer:   make([]string, 0, cfg.WriteAfterLines),
	}
	if cfg.Color != nil && *cfg.Color {
		// the renderer would otherwise strip colors on non-terminal writers
		l.renderer.SetColorProfile(termenv.ANSI256)
	}
	l.prefixStyle = l.style(cfg.PrefixColor)
	return l, nil
}

func wantsColor(cfg LogConfig) bool {
	if cfg.Color != nil {
		return *cfg.Color
	}
	f, ok := cfg.Output.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (l *Log) style(c Color) lipgloss.Style {
	s := l.renderer.NewStyle()
	if c <= ColorReset || int(c) >= len(colorCodes) {
		return s
	}
	s = s.Foreground(colorCodes[c])
	if c >= ColorBrightBlack {
		s = s.Bold(true)
	}
	return s
}

// Log writes the arguments, each rendered with ToString and separated by
// spaces.
func (l *Log) Log(args ...any) {
	l.emit("", ColorReset, ColorReset, joinArgs(args))
}

// Logf writes a formatted message.
func (l *Log) Logf(format string, args ...any) {
	l.emit("", ColorReset, ColorReset, fmt.Sprintf(format, args...))
}

// Error writes the arguments with a red "Error:" type.
func (l *Log) Error(args ...any) {
	l.emit("Error", ColorRed, ColorReset, joinArgs(args))
}

// Warning writes the arguments with a yellow "Warning:" type.
func (l *Log) Warning(args ...any) {
	l.emit("Warning", ColorYellow, ColorReset, joinArgs(args))
}

// Clog writes the arguments with a custom type and colors.
func (l *Log) Clog(typeColor Color, typ string, messageColor Color, args ...any) {
	l.emit(typ, typeColor, messageColor, joinArgs(args))
}

// AddSink registers an extra receiver of plain log lines.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Flush appends the buffered lines to the log file.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeLocked()
}

// Close flushes the buffer. Lines logged after Close are shown but not
// stored.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	err := l.writeLocked()
	l.closed = true
	return err
}

// LinesWritten returns how many lines reached the log file.
func (l *Log) LinesWritten() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.linesWritten
}

func (l *Log) emit(typ string, typeColor, messageColor Color, msg string) {
	ts := timecache.CachedTime().Format(LogTimeLayout)

	var plain strings.Builder
	plain.WriteString(ts)
	plain.WriteString(": ")
	if l.config.Prefix != "" {
		plain.WriteString(l.config.Prefix)
		plain.WriteString(": ")
	}
	if typ != "" {
		plain.WriteString(typ)
		plain.WriteString(": ")
	}
	plain.WriteString(msg)
	line := plain.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.ShowLog {
		if l.colored {
			fmt.Fprintln(l.out, l.colorize(ts, typ, typeColor, messageColor, msg))
		} else {
			fmt.Fprintln(l.out, line)
		}
	}

	for _, s := range l.sinks {
		s.WriteLine(line)
	}

	if !l.config.StoreLog || l.closed {
		return
	}
	l.buffer = append(l.buffer, line)
	if len(l.buffer) >= l.config.WriteAfterLines {
		_ = l.writeLocked()
	}
}

func (l *Log) colorize(ts, typ string, typeColor, messageColor Color, msg string) string {
	var b strings.Builder
	b.WriteString(ts)
	b.WriteString(": ")
	if l.config.Prefix != "" {
		b.WriteString(l.prefixStyle.Render(l.config.Prefix + ":"))
		b.WriteByte(' ')
	}
	if typ != "" {
		b.WriteString(l.style(typeColor).Render(typ + ":"))
		b.WriteByte(' ')
	}
	b.WriteString(l.style(messageColor).Render(msg))
	return b.String()
}

// writeLocked appends the buffer to the log file. On failure the lines
// stay buffered and the error is kept for the next Flush.
func (l *Log) writeLocked() error {
	if len(l.buffer) == 0 || !l.config.StoreLog {
		return l.writeErr
	}

	f, err := os.OpenFile(l.config.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- validated in NewLog
	if err != nil {
		l.writeErr = errors.Wrap(err, ErrCodeFileIO, "failed to open log file").
			WithContext("path", l.config.LogFile)
		return l.writeErr
	}
	defer f.Close()

	var b strings.Builder
	for _, line := range l.buffer {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		l.writeErr = errors.Wrap(err, ErrCodeFileIO, "failed to write log file").
			WithContext("path", l.config.LogFile)
		return l.writeErr
	}

	l.linesWritten += int64(len(l.buffer))
	l.buffer = l.buffer[:0]
	l.writeErr = nil
	return nil
}

func joinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = ToString(a)
	}
	return strings.Join(parts, " ")
}

// SlogHandler returns a slog.Handler that writes records through l.
// Records at Warn go to Warning, Error and above to Error, everything else
// at or above minLevel to Log. Attributes are appended as key=value.
func (l *Log) SlogHandler(minLevel slog.Level) slog.Handler {
	return &logHandler{log: l, minLevel: minLevel}
}

type logHandler struct {
	log      *Log
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

func (h *logHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *logHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		h.log.Error(b.String())
	case r.Level >= slog.LevelWarn:
		h.log.Warning(b.String())
	default:
		h.log.Log(b.String())
	}
	return nil
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			writeAttr(b, key, inner)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(ToString(a.Value.Any()))
}
