// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// newLogger builds the process logger. On a terminal, records go
// through zerolog's console writer; otherwise they are JSON, matching
// what log collectors expect. Verbose lowers the level from warn to
// debug.
func newLogger(output io.Writer, terminal, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if terminal {
		console := zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
		logger := zerolog.New(console).With().Timestamp().Logger()
		return slog.New(zeroslog.NewHandler(logger, &zeroslog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
}
