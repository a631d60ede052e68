// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger used across localchat.
//
// The chat window owns the terminal, so logs are written to a file by
// default. Passing "-" as the path logs to stderr instead.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing JSON lines to path at the given level.
func New(path, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	if path == "-" {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// LineWriter is an io.Writer that emits one debug entry per written line.
// It is used to capture child process output. Partial lines are buffered
// until a newline arrives or Flush is called.
type LineWriter struct {
	logger *zap.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
	last   []string
	keep   int
}

// NewLineWriter returns a LineWriter logging through logger. The most recent
// keep lines are retained for error reports.
func NewLineWriter(logger *zap.Logger, keep int) *LineWriter {
	return &LineWriter{logger: logger, keep: keep}
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, put it back
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// Tail returns the most recent lines, oldest first.
func (w *LineWriter) Tail() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.last))
	copy(out, w.last)
	return out
}

func (w *LineWriter) emit(line string) {
	line = string(bytes.TrimRight([]byte(line), "\r"))
	if line == "" {
		return
	}
	w.logger.Debug(line)
	if w.keep > 0 {
		w.last = append(w.last, line)
		if len(w.last) > w.keep {
			w.last = w.last[len(w.last)-w.keep:]
		}
	}
}
