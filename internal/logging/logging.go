// Package logging builds the process slog handler: a colored console
// handler on a terminal, JSON otherwise, optionally teed to a log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "", "text" or "json"; "" picks text on a terminal
	File   string // optional path; written as JSON
}

// Logger is a configured slog.Logger plus the knobs that can change later.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
}

// New constructs a logger writing to stderr and, when opts.File is set,
// to that file as well.
func New(opts Options) (*Logger, error) {
	return newLogger(os.Stderr, opts)
}

func newLogger(console io.Writer, opts Options) (*Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(ParseLevel(opts.Level))
	addSource := levelVar.Level() <= slog.LevelDebug

	var consoleHandler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "":
		if isTerminal(console) {
			consoleHandler = newTintHandler(console, levelVar, addSource)
		} else {
			consoleHandler = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: levelVar, AddSource: addSource})
		}
	case "text":
		consoleHandler = newTintHandler(console, levelVar, addSource)
	case "json":
		consoleHandler = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: levelVar, AddSource: addSource})
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	l := &Logger{level: levelVar}
	handlers := []slog.Handler{consoleHandler}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: levelVar, AddSource: addSource}))
	}

	l.Logger = slog.New(newFanoutHandler(handlers...))
	return l, nil
}

// SetLevel changes the minimum level of every handler.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newTintHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		AddSource:  addSource,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
