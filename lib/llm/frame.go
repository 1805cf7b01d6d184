// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// maxFrameSize bounds a single line of a streaming body: one SSE field
// line or one NDJSON object. Real frames are a few hundred bytes.
const maxFrameSize = 1 << 20

// errOversizedFrame reports a line longer than maxFrameSize. The line
// has been consumed and discarded; the next read starts at the
// following line, so decoders log and continue.
var errOversizedFrame = errors.New("llm: stream frame exceeds size limit")

// lineReader splits a streaming body into lines. A single network read
// may deliver several lines, or part of one; lineReader buffers across
// reads so callers always see complete lines.
type lineReader struct {
	reader *bufio.Reader
	line   []byte
}

func newLineReader(reader io.Reader) *lineReader {
	return &lineReader{reader: bufio.NewReaderSize(reader, 64*1024)}
}

// next returns the next line without its "\n" or "\r\n" terminator. A
// final line that lacks a terminator is returned before io.EOF. The
// returned slice is valid only until the following call.
func (lines *lineReader) next() ([]byte, error) {
	lines.line = lines.line[:0]
	oversized := false
	for {
		fragment, err := lines.reader.ReadSlice('\n')
		if !oversized {
			lines.line = append(lines.line, fragment...)
			if len(lines.line) > maxFrameSize {
				oversized = true
				lines.line = lines.line[:0]
			}
		}
		switch {
		case err == nil:
			if oversized {
				return nil, errOversizedFrame
			}
			return trimLineEnding(lines.line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if oversized {
				return nil, errOversizedFrame
			}
			if len(lines.line) == 0 {
				return nil, io.EOF
			}
			return trimLineEnding(lines.line), nil
		default:
			return nil, err
		}
	}
}

func trimLineEnding(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
