// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// decodeFunc yields the next text chunk from an open response body.
// It returns io.EOF at the backend's end-of-stream marker and a
// *ProviderError for a terminal in-stream failure. Any other error is
// a body read failure, classified by the stream.
type decodeFunc func() (Chunk, error)

// usageFunc records token counts a decoder found in the stream. Zero
// fields leave earlier values in place.
type usageFunc func(Usage)

// openFunc performs the HTTP round trip. On success it returns the
// response body and a decoder bound to it.
type openFunc func() (io.ReadCloser, decodeFunc, error)

// ChunkStream is a lazy, forward-only sequence of completion text.
// Nothing touches the network until the first [ChunkStream.Next].
// Chunks cannot be replayed once consumed.
//
// The connection is released when the stream reaches its end marker,
// when it fails, and when the caller calls [ChunkStream.Close]. Close
// may be called from a different goroutine than Next (for example, a
// signal handler abandoning the response); a Next blocked on the
// network returns [ErrStreamClosed] promptly and no further chunks are
// produced.
type ChunkStream struct {
	provider  string
	requestID string

	open           openFunc
	cancel         context.CancelFunc
	transportError func(error) error

	// decode is set by the first Next and touched only by the
	// consuming goroutine.
	decode decodeFunc

	mu     sync.Mutex
	body   io.ReadCloser
	text   strings.Builder
	usage  Usage
	closed bool
	done   bool
}

func newChunkStream(provider, requestID string, open openFunc, cancel context.CancelFunc, transportError func(error) error) *ChunkStream {
	return &ChunkStream{
		provider:       provider,
		requestID:      requestID,
		open:           open,
		cancel:         cancel,
		transportError: transportError,
	}
}

// NewChunkStream returns a stream whose chunks come from next, for
// providers that produce text without an HTTP round trip. next returns
// io.EOF after the last chunk; any other error ends the stream and is
// returned to the caller unchanged. closer, if non-nil, is closed when
// the stream ends or is closed.
func NewChunkStream(provider string, next func() (Chunk, error), closer io.Closer) *ChunkStream {
	body := io.NopCloser(strings.NewReader(""))
	if closer != nil {
		body = struct {
			io.Reader
			io.Closer
		}{strings.NewReader(""), closer}
	}
	open := func() (io.ReadCloser, decodeFunc, error) {
		return body, decodeFunc(next), nil
	}
	passthrough := func(err error) error { return err }
	return newChunkStream(provider, uuid.NewString(), open, func() {}, passthrough)
}

// Provider returns the name of the provider producing the stream.
func (stream *ChunkStream) Provider() string {
	return stream.provider
}

// RequestID returns the X-Request-Id sent with the request.
func (stream *ChunkStream) RequestID() string {
	return stream.requestID
}

// Next returns the next text chunk. At the backend's end marker it
// returns io.EOF. A failure is returned once as a *ProviderError (or
// the caller's context error when the caller's context was cancelled);
// every later call returns io.EOF. After Close, Next returns
// ErrStreamClosed.
func (stream *ChunkStream) Next() (Chunk, error) {
	stream.mu.Lock()
	closed, done := stream.closed, stream.done
	stream.mu.Unlock()
	if closed {
		return Chunk{}, ErrStreamClosed
	}
	if done {
		return Chunk{}, io.EOF
	}

	if stream.decode == nil {
		body, decode, err := stream.open()
		if err != nil {
			return stream.fail(err)
		}
		stream.mu.Lock()
		if stream.closed {
			stream.mu.Unlock()
			body.Close()
			return Chunk{}, ErrStreamClosed
		}
		stream.body = body
		stream.mu.Unlock()
		stream.decode = decode
	}

	chunk, err := stream.decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			stream.finish()
			return Chunk{}, io.EOF
		}
		return stream.fail(err)
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.closed {
		return Chunk{}, ErrStreamClosed
	}
	stream.text.WriteString(chunk.Text)
	return chunk, nil
}

// fail ends the stream with err. Errors caused by a concurrent Close
// are reported as ErrStreamClosed rather than as transport failures.
func (stream *ChunkStream) fail(err error) (Chunk, error) {
	stream.mu.Lock()
	closed := stream.closed
	stream.mu.Unlock()
	if closed {
		return Chunk{}, ErrStreamClosed
	}
	stream.finish()
	return Chunk{}, stream.transportError(err)
}

// finish marks the stream exhausted and releases the connection.
func (stream *ChunkStream) finish() {
	stream.mu.Lock()
	stream.done = true
	body := stream.body
	stream.body = nil
	stream.mu.Unlock()

	stream.cancel()
	if body != nil {
		body.Close()
	}
}

// Close abandons the stream and releases its connection. Close is
// idempotent and safe to call concurrently with Next.
func (stream *ChunkStream) Close() error {
	stream.mu.Lock()
	if stream.closed {
		stream.mu.Unlock()
		return nil
	}
	stream.closed = true
	body := stream.body
	stream.body = nil
	stream.mu.Unlock()

	stream.cancel()
	if body != nil {
		return body.Close()
	}
	return nil
}

// Usage returns the token counts the backend has reported so far.
// Backends report input tokens at the start of the stream or at its
// end, so the counts are complete only once Next has returned io.EOF.
// Streams from [NewChunkStream] report nothing.
func (stream *ChunkStream) Usage() Usage {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.usage
}

func (stream *ChunkStream) recordUsage(usage Usage) {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if usage.InputTokens > 0 {
		stream.usage.InputTokens = usage.InputTokens
	}
	if usage.OutputTokens > 0 {
		stream.usage.OutputTokens = usage.OutputTokens
	}
}

// Text returns the text received so far.
func (stream *ChunkStream) Text() string {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.text.String()
}

// All returns an iterator over the remaining chunks. A failure is
// yielded as a final Chunk with Err set. The stream is closed when the
// loop ends, including when the caller breaks out early.
func (stream *ChunkStream) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		defer stream.Close()
		for {
			chunk, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Chunk{Err: err})
				return
			}
			if !yield(chunk) {
				return
			}
		}
	}
}

// ReadAll drains the stream and returns the complete text. The stream
// is closed on return. On failure the text received before the error
// is returned alongside it.
func ReadAll(stream *ChunkStream) (string, error) {
	defer stream.Close()
	for {
		_, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return stream.Text(), nil
		}
		if err != nil {
			return stream.Text(), err
		}
	}
}
