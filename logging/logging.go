// Package logging sets up the process-wide slog logger. Output can be
// buffered during startup and redirected later, which matters for the
// simulator: log lines written before the TUI owns the terminal would
// otherwise be lost or garble the screen.
package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"saberd/config"
)

// teeWriter holds log output in a buffer until a live target is
// attached, then writes through. An optional log file always receives
// everything.
type teeWriter struct {
	mu        sync.Mutex
	held      bytes.Buffer
	target    io.Writer
	file      *os.File
	buffering bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.buffering {
		w.held.Write(p)
	} else if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

// attach flushes held output to the new target and switches to live
// writing.
func (w *teeWriter) attach(target io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.held.Len() > 0 {
		if _, err := target.Write(w.held.Bytes()); err != nil {
			return err
		}
		w.held.Reset()
	}
	w.target = target
	w.buffering = false
	return nil
}

func (w *teeWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.held.Len() > 0 {
		out := io.Writer(os.Stderr)
		if w.file != nil {
			out = w.file
		}
		if _, err := out.Write(w.held.Bytes()); err != nil {
			firstErr = err
		}
		w.held.Reset()
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.file = nil
	}
	return firstErr
}

var writer *teeWriter

// Init configures the default slog logger from the logging section of
// the configuration. With BufferStartup set, output is held until
// SetOutput attaches a destination.
func Init(conf config.LoggingConfig) error {
	writer = &teeWriter{buffering: conf.BufferStartup}
	if !conf.BufferStartup {
		writer.target = os.Stderr
	}

	if conf.File != "" {
		f, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writer.file = f
	}

	var level slog.Level
	switch strings.ToUpper(conf.Level) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(conf.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput attaches the live log destination, flushing anything
// buffered since Init.
func SetOutput(target io.Writer) error {
	return writer.attach(target)
}

// Close flushes buffered output and closes the log file.
func Close() error {
	if writer == nil {
		return nil
	}
	return writer.close()
}
