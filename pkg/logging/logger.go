// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for delegation components.
//
// Built on the standard library slog package, with two extensions the
// delegation service and CLI both need:
//
//   - multi-destination output: human-readable text on stderr plus an
//     optional JSON log file per service per day
//   - a service attribute stamped on every entry, so aggregated logs from
//     delegated, delegatectl, and embedded registries stay separable
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Service: "delegated", JSON: true})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config configures the Logger. The zero value writes Info+ messages to
// stderr in text format with no file logging.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// LogDir enables file logging to the given directory. The file is
	// named "{Service}_{YYYY-MM-DD}.log" and always uses JSON. Supports
	// ~ expansion. Default: "" (file logging disabled).
	LogDir string

	// Service is stamped on every entry as the "service" attribute.
	// Default: "delegation".
	Service string

	// JSON switches stderr output to JSON. File logs are always JSON.
	JSON bool

	// Quiet disables stderr output; logs go only to the file, if any.
	Quiet bool
}

// Logger wraps slog.Logger with file output and cleanup.
//
// Safe for concurrent use. Call Close when file logging is configured to
// sync and release the file handle.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
}

// New creates a Logger from the configuration. File-open failures degrade
// silently to stderr-only; logging must never take the process down.
func New(config Config) *Logger {
	if config.Service == "" {
		config.Service = "delegation"
	}
	opts := &slog.HandlerOptions{Level: config.Level}

	logger := &Logger{config: config}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	if config.LogDir != "" {
		if file := openLogFile(expandPath(config.LogDir), config.Service); file != nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	logger.slog = slog.New(handler)
	return logger
}

// Default returns a stderr-only text logger at Info level.
func Default() *Logger {
	return New(Config{})
}

// Slog returns the underlying slog.Logger, typically handed to
// slog.SetDefault so package-level slog calls flow through this logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// With returns a child logger carrying additional attributes. The file
// handle is shared; only close the root logger.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// Close syncs and closes the log file, when one is open.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	l.file = nil
	return nil
}

// openLogFile creates the log directory and opens today's log file for
// appending. Returns nil on any failure.
func openLogFile(dir, service string) *os.File {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil
	}
	filename := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil
	}
	return file
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
