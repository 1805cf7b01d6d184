// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// sseEvent is a single dispatched Server-Sent Event.
type sseEvent struct {
	// Type is the "event:" field, empty for the default event type.
	Type string

	// Data joins the event's "data:" lines with newlines.
	Data string
}

// sseScanner reads Server-Sent Events from a streaming body.
//
// Events are delimited by blank lines. "data:" lines carry the payload
// and "event:" names the type. Comment lines (leading ":") and other
// fields ("id:", "retry:") are ignored. An event with no data lines is
// not dispatched. A trailing event not followed by a blank line is
// still dispatched at EOF.
//
// A line longer than maxFrameSize is discarded together with the event
// it belongs to, and scanning continues with the next event.
type sseScanner struct {
	lines   *lineReader
	logger  *slog.Logger
	current sseEvent
	err     error
}

func newSSEScanner(reader io.Reader, logger *slog.Logger) *sseScanner {
	return &sseScanner{lines: newLineReader(reader), logger: logger}
}

// Next advances to the next event. It returns false at EOF or on a
// read error; Err distinguishes the two.
func (scanner *sseScanner) Next() bool {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)
	for {
		line, err := scanner.lines.next()
		if errors.Is(err, errOversizedFrame) {
			scanner.logger.Warn("discarding oversized stream event", "limit_bytes", maxFrameSize)
			eventType, hasData = "", false
			data.Reset()
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if hasData {
					scanner.current = sseEvent{Type: eventType, Data: data.String()}
					return true
				}
			} else {
				scanner.err = err
			}
			return false
		}

		if len(line) == 0 {
			if hasData {
				scanner.current = sseEvent{Type: eventType, Data: data.String()}
				return true
			}
			eventType = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			eventType = string(value)
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		}
	}
}

// Event returns the event produced by the most recent successful Next.
func (scanner *sseScanner) Event() sseEvent {
	return scanner.current
}

// Err returns the read error that stopped the scanner, or nil at EOF.
func (scanner *sseScanner) Err() error {
	return scanner.err
}
