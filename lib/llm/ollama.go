// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultOllamaBaseURL is where a local Ollama server listens.
const DefaultOllamaBaseURL = "http://localhost:11434"

// Ollama implements [Provider] for a locally hosted Ollama server's
// native chat API. There is no authentication. The response is
// newline-delimited JSON; each object carries a "done" flag and the
// object with done=true is the last.
//
// A refused connection means the server is not running. That surfaces
// as a [KindNetwork] error wrapping [ErrServiceUnreachable] whose
// message says how to start it.
type Ollama struct {
	name     string
	config   ProviderConfig
	endpoint endpoint
}

// NewOllama creates an Ollama provider. It never fails; call
// [Ollama.Validate] to check the configuration.
func NewOllama(config ProviderConfig, options Options) *Ollama {
	name := config.Name
	if name == "" {
		name = string(ProtocolOllama)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	provider := &Ollama{
		name:     name,
		config:   config,
		endpoint: newEndpoint(name, baseURL, config, options),
	}
	provider.endpoint.unreachableHint = fmt.Sprintf(
		"ollama is not running at %s; start it with `ollama serve`", provider.endpoint.baseURL)
	return provider
}

// Name returns the registry name.
func (provider *Ollama) Name() string {
	return provider.name
}

// Validate requires a model and an http(s) base URL. No credential is
// needed.
func (provider *Ollama) Validate() error {
	return validateCommon(provider.name, provider.config, provider.endpoint.baseURL)
}

// HealthCheck lists local models. This is the check that tells "not
// running" apart from every other failure.
func (provider *Ollama) HealthCheck(ctx context.Context) error {
	return provider.endpoint.get(ctx, "/api/tags")
}

// Complete prepares a streaming chat call.
func (provider *Ollama) Complete(ctx context.Context, request Request) (*ChunkStream, error) {
	return provider.endpoint.openStream(ctx, "/api/chat",
		provider.buildRequest(request.Clone()), "application/x-ndjson", provider.decoder)
}

func (provider *Ollama) buildRequest(request Request) ollamaRequest {
	wireRequest := ollamaRequest{
		Model:    request.Model,
		Stream:   true,
		Messages: make([]ollamaMessage, 0, len(request.Messages)),
		Options: ollamaOptions{
			Temperature: request.Temperature,
			NumPredict:  request.MaxTokens,
		},
	}
	if wireRequest.Model == "" {
		wireRequest.Model = provider.config.Model
	}
	if wireRequest.Options.NumPredict == 0 {
		wireRequest.Options.NumPredict = provider.config.MaxTokens
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, ollamaMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}
	return wireRequest
}

// decoder splits the body on newlines and decodes one object per
// line. Objects may arrive split across reads or several to a read;
// the line reader reassembles them. Blank and malformed lines are
// skipped. The final object carries the token counts.
func (provider *Ollama) decoder(body io.Reader, logger *slog.Logger, usage usageFunc) decodeFunc {
	lines := newLineReader(body)
	finished := false
	return func() (Chunk, error) {
		if finished {
			return Chunk{}, io.EOF
		}
		for {
			line, err := lines.next()
			if errors.Is(err, errOversizedFrame) {
				logger.Warn("discarding oversized stream line", "limit_bytes", maxFrameSize)
				continue
			}
			if errors.Is(err, io.EOF) {
				return Chunk{}, provider.endpoint.truncated(`"done": true`)
			}
			if err != nil {
				return Chunk{}, err
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var frame ollamaStreamFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				logger.Warn("skipping malformed stream line", "error", err, "bytes", len(line))
				continue
			}
			if frame.Error != "" {
				return Chunk{}, &ProviderError{
					Kind:     KindAPI,
					Provider: provider.name,
					Message:  frame.Error,
				}
			}

			if frame.Done {
				finished = true
				usage(Usage{
					InputTokens:  frame.PromptEvalCount,
					OutputTokens: frame.EvalCount,
				})
				if frame.Message.Content == "" {
					return Chunk{}, io.EOF
				}
			}
			if frame.Message.Content != "" {
				return Chunk{Text: frame.Message.Content}, nil
			}
		}
	}
}

// --- Wire types ---

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaStreamFrame struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}
