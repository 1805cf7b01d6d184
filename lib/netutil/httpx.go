// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and transport helpers shared by the
// provider adapters.
//
// Body helpers (ErrorBody, DrainAndClose) bound every non-streaming
// read at MaxErrorBodySize so a misbehaving backend cannot exhaust
// memory through an error page. Streaming bodies are read
// incrementally by their decoders and never pass through here.
//
// Classification helpers (IsTimeout, IsConnectionRefused) inspect the
// error chains produced by net/http so callers can tell a slow backend
// from one that is not running at all.
package netutil

import (
	"io"
)

// MaxErrorBodySize bounds reads of non-streaming response bodies:
// 64 KiB. Backend error envelopes are a few hundred bytes; anything
// past the bound is an HTML error page or worse and carries nothing
// a diagnostic message needs.
const MaxErrorBodySize int64 = 64 << 10

// ErrorBody reads an HTTP error response body up to MaxErrorBodySize
// bytes for diagnostic messages. Read errors are ignored: a partial or
// empty body is still useful.
func ErrorBody(body io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return data
}

// DrainAndClose discards up to MaxErrorBodySize bytes of body and
// closes it, letting the transport reuse the connection for small
// responses whose content the caller does not need.
func DrainAndClose(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxErrorBodySize))
	return body.Close()
}
