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

const (
	// DefaultAnthropicBaseURL is the Anthropic API root.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	// DefaultAnthropicMaxTokens is sent when neither the request nor
	// the configuration sets a cap. The Messages API rejects requests
	// without max_tokens.
	DefaultAnthropicMaxTokens = 4096

	// anthropicAPIVersion is the mandatory anthropic-version header.
	anthropicAPIVersion = "2023-06-01"

	// systemSeparator joins multiple system messages into the single
	// top-level system field, and consecutive same-role messages into
	// one.
	systemSeparator = "\n\n"

	// anthropicContinuation opens the message array when history would
	// otherwise start with an assistant turn, which the Messages API
	// rejects. This happens after older history was summarized into
	// the system field.
	anthropicContinuation = "(The conversation so far is summarized above.)"
)

// Anthropic implements [Provider] for the Anthropic Messages API.
//
// System messages are not allowed in the Messages API's message array.
// They are lifted into the top-level "system" field, joined by a blank
// line when there are several. The remaining messages must alternate
// and start with a user turn: consecutive same-role messages are
// merged, and a leading assistant turn gets a placeholder user turn in
// front of it. Streaming uses typed Server-Sent Events:
// only content_block_delta events carry text, and message_stop ends the
// stream.
type Anthropic struct {
	name     string
	config   ProviderConfig
	endpoint endpoint
}

// NewAnthropic creates an Anthropic provider. It never fails; call
// [Anthropic.Validate] to check the configuration.
func NewAnthropic(config ProviderConfig, options Options) *Anthropic {
	name := config.Name
	if name == "" {
		name = string(ProtocolAnthropic)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	provider := &Anthropic{
		name:     name,
		config:   config,
		endpoint: newEndpoint(name, baseURL, config, options),
	}
	provider.endpoint.authorize = func(header http.Header) {
		header.Set("x-api-key", config.APIKey)
		header.Set("anthropic-version", anthropicAPIVersion)
	}
	return provider
}

// Name returns the registry name.
func (provider *Anthropic) Name() string {
	return provider.name
}

// Validate requires an API key, a model, and an http(s) base URL.
func (provider *Anthropic) Validate() error {
	if strings.TrimSpace(provider.config.APIKey) == "" {
		return configError(provider.name, "no API key configured")
	}
	return validateCommon(provider.name, provider.config, provider.endpoint.baseURL)
}

// HealthCheck lists models, exercising reachability and the
// credential without generating tokens.
func (provider *Anthropic) HealthCheck(ctx context.Context) error {
	return provider.endpoint.get(ctx, "/v1/models")
}

// Complete prepares a streaming Messages API call.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*ChunkStream, error) {
	return provider.endpoint.openStream(ctx, "/v1/messages",
		provider.buildRequest(request.Clone()), "text/event-stream", provider.decoder)
}

// buildRequest converts a request to the wire format, extracting
// system messages, normalizing role order, and resolving the mandatory
// token cap.
func (provider *Anthropic) buildRequest(request Request) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		Stream:      true,
		Messages:    make([]anthropicMessage, 0, len(request.Messages)),
	}
	if wireRequest.Model == "" {
		wireRequest.Model = provider.config.Model
	}
	if wireRequest.MaxTokens == 0 {
		wireRequest.MaxTokens = provider.config.MaxTokens
	}
	if wireRequest.MaxTokens == 0 {
		wireRequest.MaxTokens = DefaultAnthropicMaxTokens
	}

	var system []string
	for _, message := range request.Messages {
		if message.Role == RoleSystem {
			system = append(system, message.Content)
			continue
		}
		if len(wireRequest.Messages) == 0 && message.Role == RoleAssistant {
			wireRequest.Messages = append(wireRequest.Messages, anthropicMessage{
				Role:    string(RoleUser),
				Content: anthropicContinuation,
			})
		}
		if last := len(wireRequest.Messages) - 1; last >= 0 && wireRequest.Messages[last].Role == string(message.Role) {
			wireRequest.Messages[last].Content += systemSeparator + message.Content
			continue
		}
		wireRequest.Messages = append(wireRequest.Messages, anthropicMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}
	wireRequest.System = strings.Join(system, systemSeparator)
	return wireRequest
}

// decoder reads the typed event stream. The event type is taken from
// the JSON payload, which the API always includes, so a missing or
// mismatched "event:" line does not matter. Input tokens arrive with
// message_start and output tokens with message_delta.
func (provider *Anthropic) decoder(body io.Reader, logger *slog.Logger, usage usageFunc) decodeFunc {
	scanner := newSSEScanner(body, logger)
	return func() (Chunk, error) {
		for scanner.Next() {
			data := scanner.Event().Data
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				logger.Warn("skipping malformed stream event",
					"event", scanner.Event().Type, "error", err, "bytes", len(data))
				continue
			}

			switch event.Type {
			case "message_start":
				usage(Usage{
					InputTokens: event.Message.Usage.InputTokens +
						event.Message.Usage.CacheReadInputTokens +
						event.Message.Usage.CacheCreationInputTokens,
				})
			case "message_delta":
				usage(Usage{OutputTokens: event.Usage.OutputTokens})
			case "content_block_delta":
				if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					return Chunk{Text: event.Delta.Text}, nil
				}
			case "message_stop":
				return Chunk{}, io.EOF
			case "error":
				return Chunk{}, provider.endpoint.streamError([]byte(data))
			default:
				// content_block_start/stop, ping, and future event
				// types carry no text.
			}
		}
		if err := scanner.Err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, provider.endpoint.truncated("message_stop")
	}
}

// --- Wire types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}
