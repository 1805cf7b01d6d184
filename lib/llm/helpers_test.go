// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testCredential is a recognizable fake key. Tests assert it never
// appears in error text.
const testCredential = "sk-test-SECRET-0123456789"

// newTestServer starts an httptest server that routes to mux and is
// closed when the test ends.
func newTestServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// writeFrames writes each frame and flushes after it, so the client
// sees them as separate network reads.
func writeFrames(t *testing.T, writer http.ResponseWriter, frames ...string) {
	t.Helper()
	flusher, ok := writer.(http.Flusher)
	if !ok {
		t.Fatal("response writer does not support flushing")
	}
	for _, frame := range frames {
		if _, err := io.WriteString(writer, frame); err != nil {
			return
		}
		flusher.Flush()
	}
}

// sseData formats a payload as one SSE data event.
func sseData(payload string) string {
	return "data: " + payload + "\n\n"
}

// sseTyped formats a payload as one typed SSE event.
func sseTyped(eventType, payload string) string {
	return "event: " + eventType + "\ndata: " + payload + "\n\n"
}

// drain consumes a stream, returning the chunks and the terminal error
// (nil on a clean end).
func drain(t *testing.T, stream *ChunkStream) ([]string, error) {
	t.Helper()
	var chunks []string
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk.Text)
	}
}

// complete opens a stream against provider and drains it.
func complete(t *testing.T, provider Provider, request Request) (string, error) {
	t.Helper()
	stream, err := provider.Complete(context.Background(), request)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer stream.Close()
	chunks, err := drain(t, stream)
	return strings.Join(chunks, ""), err
}

// decodeBody unmarshals a captured request body.
func decodeBody(t *testing.T, request *http.Request, target any) {
	t.Helper()
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		t.Errorf("decoding request body: %v", err)
	}
}

// requireKind asserts err is a *ProviderError of the given kind and
// that its text does not leak the test credential.
func requireKind(t *testing.T, err error, kind ErrorKind) *ProviderError {
	t.Helper()
	providerError, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("error %v (%T) is not a *ProviderError", err, err)
	}
	if providerError.Kind != kind {
		t.Fatalf("Kind = %s, want %s (error: %v)", providerError.Kind, kind, err)
	}
	if strings.Contains(err.Error(), testCredential) {
		t.Fatalf("error text leaks the credential: %v", err)
	}
	return providerError
}

func textRequest(messages ...Message) Request {
	return Request{Messages: messages, Temperature: 0.2}
}

func jsonString(t *testing.T, value any) string {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func openaiDelta(text string) string {
	return fmt.Sprintf(`{"choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, text)
}

func anthropicDelta(text string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, text)
}

func ollamaLine(text string, done bool) string {
	return fmt.Sprintf(`{"model":"llama3","message":{"role":"assistant","content":%q},"done":%t}`+"\n", text, done)
}
