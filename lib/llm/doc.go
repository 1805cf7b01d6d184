// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic streaming chat completion
// interface over several Large Language Model backends.
//
// The primary abstraction is [Provider]. Each implementation translates
// a [Request] into its backend's wire format, opens a streaming HTTP
// call, and decodes the backend's framing into a [ChunkStream] of text
// increments. Three wire protocols are supported:
//
//   - [OpenAI]: chat completions over Server-Sent Events, terminated by
//     a "[DONE]" sentinel payload.
//   - [Anthropic]: the Messages API over typed Server-Sent Events.
//     System messages travel in a top-level field rather than the
//     message array, and every request carries an explicit token cap.
//   - [Ollama]: newline-delimited JSON from a locally hosted server.
//     Each object reports whether it is the last.
//
// [ChunkStream] is lazy: [Provider.Complete] builds the outbound
// request but performs no I/O. The HTTP round trip happens on the
// first [ChunkStream.Next]. Closing a stream, from any goroutine,
// cancels the request and releases the connection.
//
// Every failure a provider reports is a [*ProviderError] carrying one
// of five kinds ([KindNetwork], [KindAPI], [KindRateLimited],
// [KindAuth], [KindConfig]). Callers decide retry and messaging from
// the kind alone; backend-specific error shapes never escape this
// package. Error text never contains the configured credential.
//
// [Registry] builds the set of usable providers from configuration.
// Backends with invalid configuration are skipped with a warning; the
// registry is immutable after construction.
package llm
