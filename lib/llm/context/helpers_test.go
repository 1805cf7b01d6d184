// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"io"
	"sync"

	"github.com/bureau-foundation/converse/lib/llm"
)

// fakeProvider answers every Complete with reply, or fails the stream
// with streamErr. It records each request it receives.
type fakeProvider struct {
	reply     string
	streamErr error

	mu       sync.Mutex
	requests []llm.Request
}

func (provider *fakeProvider) Name() string { return "fake" }

func (provider *fakeProvider) Validate() error { return nil }

func (provider *fakeProvider) HealthCheck(context.Context) error { return nil }

func (provider *fakeProvider) Complete(ctx context.Context, request llm.Request) (*llm.ChunkStream, error) {
	provider.mu.Lock()
	provider.requests = append(provider.requests, request.Clone())
	provider.mu.Unlock()

	sent := false
	return llm.NewChunkStream(provider.Name(), func() (llm.Chunk, error) {
		if err := ctx.Err(); err != nil {
			return llm.Chunk{}, err
		}
		if provider.streamErr != nil {
			return llm.Chunk{}, provider.streamErr
		}
		if sent {
			return llm.Chunk{}, io.EOF
		}
		sent = true
		return llm.Chunk{Text: provider.reply}, nil
	}, nil), nil
}

func (provider *fakeProvider) calls() []llm.Request {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	return append([]llm.Request(nil), provider.requests...)
}

// fixedEstimator charges a flat cost per message.
type fixedEstimator struct {
	tokensPerMessage int
}

func (estimator fixedEstimator) EstimateTokens(messages []llm.Message) int {
	return len(messages) * estimator.tokensPerMessage
}

func (estimator fixedEstimator) RecordUsage([]llm.Message, int64) {}

// entries wraps messages as ordinary history.
func entries(messages ...llm.Message) []Entry {
	history := make([]Entry, len(messages))
	for i, message := range messages {
		history[i] = Entry{Message: message}
	}
	return history
}

func messagesEqual(a, b []llm.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
