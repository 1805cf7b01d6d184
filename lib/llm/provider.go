// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/bureau-foundation/converse/lib/clock"
)

// Provider is a streaming chat completion backend.
//
// Implementations must be safe for concurrent use: the registry hands
// the same instance to every caller. A single conversation must still
// issue its turns sequentially.
type Provider interface {
	// Name returns the provider's stable registry name. It has no side
	// effects and is used for logging and lookup.
	Name() string

	// Complete prepares a streaming completion. It performs no I/O and
	// does not block: the request is sent when the returned stream is
	// first read. A synchronous error means the outbound request could
	// not be built.
	Complete(ctx context.Context, request Request) (*ChunkStream, error)

	// Validate checks the local configuration (credential present,
	// base URL well formed) without touching the network. It returns a
	// [KindConfig] error describing the first problem found.
	Validate() error

	// HealthCheck makes a lightweight request to confirm the backend is
	// reachable and accepts the credential.
	HealthCheck(ctx context.Context) error
}

// Protocol names a backend wire protocol.
type Protocol string

const (
	ProtocolOpenAI    Protocol = "openai"
	ProtocolAnthropic Protocol = "anthropic"
	ProtocolOllama    Protocol = "ollama"
)

const (
	// DefaultTimeout bounds a whole response, including a long
	// streamed answer.
	DefaultTimeout = 10 * time.Minute

	// DefaultConnectTimeout bounds TCP connection establishment and
	// the TLS handshake.
	DefaultConnectTimeout = 10 * time.Second
)

// ProviderConfig is the per-backend configuration supplied by the
// configuration loader. Values are used as given; [Provider.Validate]
// reports problems.
type ProviderConfig struct {
	// Name is the registry key. Empty means the protocol name.
	Name string

	Protocol Protocol

	// APIKey is the credential. Never logged or included in errors.
	APIKey string

	// BaseURL overrides the protocol's default endpoint.
	BaseURL string

	// Model is used when a request does not name one.
	Model string

	// MaxTokens is the default output cap for requests that do not
	// set one.
	MaxTokens int

	// Timeout bounds a whole response. Zero means DefaultTimeout.
	Timeout time.Duration

	// ConnectTimeout bounds connection establishment. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Options carries process-level collaborators shared by providers.
// The zero value is usable.
type Options struct {
	// Logger receives warnings about skipped stream frames and debug
	// traces of outbound requests. Nil discards.
	Logger *slog.Logger

	// Clock resolves Retry-After dates. Nil means the real clock.
	Clock clock.Clock
}

func (options Options) logger() *slog.Logger {
	if options.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return options.Logger
}

// NewProvider constructs the adapter for config.Protocol. It fails
// only for an unknown protocol; every other configuration problem is
// deferred to [Provider.Validate].
func NewProvider(config ProviderConfig, options Options) (Provider, error) {
	switch config.Protocol {
	case ProtocolOpenAI:
		return NewOpenAI(config, options), nil
	case ProtocolAnthropic:
		return NewAnthropic(config, options), nil
	case ProtocolOllama:
		return NewOllama(config, options), nil
	default:
		name := config.Name
		if name == "" {
			name = "(unnamed)"
		}
		return nil, configError(name, "unknown protocol %q (want %q, %q, or %q)",
			config.Protocol, ProtocolOpenAI, ProtocolAnthropic, ProtocolOllama)
	}
}

// validateCommon checks the settings every adapter shares.
func validateCommon(name string, config ProviderConfig, baseURL string) error {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return configError(name, "base URL %q is not a valid URL", baseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return configError(name, "base URL %q must use http or https", baseURL)
	}
	if parsed.Host == "" {
		return configError(name, "base URL %q has no host", baseURL)
	}
	if config.Model == "" {
		return configError(name, "no model configured")
	}
	if config.MaxTokens < 0 {
		return configError(name, "max_tokens must not be negative, got %d", config.MaxTokens)
	}
	if config.Timeout < 0 || config.ConnectTimeout < 0 {
		return configError(name, "timeouts must not be negative")
	}
	return nil
}
