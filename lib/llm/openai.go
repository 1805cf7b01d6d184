// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultOpenAIBaseURL is the OpenAI API root. Compatible servers
// (OpenRouter, vLLM, llama.cpp) are reached by overriding BaseURL.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiDoneSentinel is the data payload that terminates a stream. It
// is not JSON.
const openaiDoneSentinel = "[DONE]"

// OpenAI implements [Provider] for the Chat Completions API:
// bearer-token authentication, roles passed through unchanged, and
// Server-Sent Events terminated by a "[DONE]" payload.
type OpenAI struct {
	name     string
	config   ProviderConfig
	endpoint endpoint
}

// NewOpenAI creates an OpenAI-compatible provider. It never fails;
// call [OpenAI.Validate] to check the configuration.
func NewOpenAI(config ProviderConfig, options Options) *OpenAI {
	name := config.Name
	if name == "" {
		name = string(ProtocolOpenAI)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	provider := &OpenAI{
		name:     name,
		config:   config,
		endpoint: newEndpoint(name, baseURL, config, options),
	}
	provider.endpoint.authorize = func(header http.Header) {
		header.Set("Authorization", "Bearer "+config.APIKey)
	}
	return provider
}

// Name returns the registry name.
func (provider *OpenAI) Name() string {
	return provider.name
}

// Validate requires an API key, a model, and an http(s) base URL.
func (provider *OpenAI) Validate() error {
	if strings.TrimSpace(provider.config.APIKey) == "" {
		return configError(provider.name, "no API key configured")
	}
	return validateCommon(provider.name, provider.config, provider.endpoint.baseURL)
}

// HealthCheck lists models, which exercises both reachability and the
// credential without generating tokens.
func (provider *OpenAI) HealthCheck(ctx context.Context) error {
	return provider.endpoint.get(ctx, "/models")
}

// Complete prepares a streaming chat completion.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*ChunkStream, error) {
	return provider.endpoint.openStream(ctx, "/chat/completions",
		provider.buildRequest(request.Clone()), "text/event-stream", provider.decoder)
}

// buildRequest converts a request to the wire format. Roles map
// directly; the configured model and token cap fill unset fields.
// Usage reporting is always requested.
func (provider *OpenAI) buildRequest(request Request) openaiRequest {
	wireRequest := openaiRequest{
		Model:         request.Model,
		Temperature:   request.Temperature,
		MaxTokens:     request.MaxTokens,
		Stream:        true,
		StreamOptions: &openaiStreamOptions{IncludeUsage: true},
		Messages:      make([]openaiMessage, 0, len(request.Messages)),
	}
	if wireRequest.Model == "" {
		wireRequest.Model = provider.config.Model
	}
	if wireRequest.MaxTokens == 0 {
		wireRequest.MaxTokens = provider.config.MaxTokens
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}
	return wireRequest
}

// decoder reads chat.completion.chunk events. A frame that is not
// valid JSON is logged and skipped. The stream ends at the "[DONE]"
// sentinel; some compatible servers omit it, so EOF after a
// finish_reason is also a clean end. With include_usage set, the last
// frame before the sentinel carries usage and no choices.
func (provider *OpenAI) decoder(body io.Reader, logger *slog.Logger, usage usageFunc) decodeFunc {
	scanner := newSSEScanner(body, logger)
	finished := false
	return func() (Chunk, error) {
		for scanner.Next() {
			data := strings.TrimSpace(scanner.Event().Data)
			if data == openaiDoneSentinel {
				return Chunk{}, io.EOF
			}

			var frame openaiStreamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				logger.Warn("skipping malformed stream frame", "error", err, "bytes", len(data))
				continue
			}
			if len(frame.Error) > 0 && string(frame.Error) != "null" {
				return Chunk{}, provider.endpoint.streamError([]byte(data))
			}
			if frame.Usage != nil {
				usage(Usage{
					InputTokens:  frame.Usage.PromptTokens,
					OutputTokens: frame.Usage.CompletionTokens,
				})
			}
			if len(frame.Choices) == 0 {
				continue
			}
			choice := frame.Choices[0]
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finished = true
			}
			if choice.Delta.Content != "" {
				return Chunk{Text: choice.Delta.Content}, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return Chunk{}, err
		}
		if finished {
			return Chunk{}, io.EOF
		}
		return Chunk{}, provider.endpoint.truncated(openaiDoneSentinel)
	}
}

// --- Wire types ---

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	Temperature   float64              `json:"temperature"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Stream        bool                 `json:"stream"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiStreamFrame struct {
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage"`
	Error   json.RawMessage      `json:"error,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type openaiStreamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}
