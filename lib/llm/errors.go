// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrStreamClosed is returned by [ChunkStream.Next] after the
	// caller closed the stream.
	ErrStreamClosed = errors.New("llm: stream closed")

	// ErrProviderNotFound is returned by [Registry.Lookup] for a name
	// that was not configured or was skipped during construction.
	ErrProviderNotFound = errors.New("llm: provider not found")

	// ErrNoProviders is returned by [NewRegistry] when no configured
	// backend could be constructed.
	ErrNoProviders = errors.New("llm: no usable providers")

	// ErrServiceUnreachable marks a [KindNetwork] error where a locally
	// hosted backend refused the connection, meaning the service is
	// not running. The error message tells the user how to start it.
	ErrServiceUnreachable = errors.New("llm: service unreachable")
)

// ErrorKind classifies a [ProviderError]. The set is closed: callers
// can switch over it exhaustively.
type ErrorKind int

const (
	// KindNetwork is a transport failure: DNS, connection refused,
	// TLS, timeout, or a stream that ended before its terminator.
	// Potentially transient.
	KindNetwork ErrorKind = iota + 1

	// KindAPI means the backend rejected or failed the request.
	// StatusCode carries the HTTP status when one was received; 5xx
	// statuses are potentially transient.
	KindAPI

	// KindRateLimited means the backend throttled the request.
	// RetryAfter carries the wait hint.
	KindRateLimited

	// KindAuth means the credential is missing, invalid, or lacks
	// permission.
	KindAuth

	// KindConfig means the local configuration is invalid. Config
	// errors are raised before any request is sent.
	KindConfig
)

// String returns the lowercase kind name used in logs.
func (kind ErrorKind) String() string {
	switch kind {
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("kind(%d)", int(kind))
	}
}

// DefaultRetryAfter is the wait hint attached to a rate-limit error
// when the backend provides none.
const DefaultRetryAfter = 30 * time.Second

// ProviderError is the single error type every provider reports.
// Message is human-readable and never contains the credential.
type ProviderError struct {
	Kind ErrorKind

	// Provider is the registry name of the provider that failed.
	Provider string

	// StatusCode is the HTTP status, or zero when no response was
	// received.
	StatusCode int

	Message string

	// RetryAfter is the backend's wait hint. Set only for
	// [KindRateLimited].
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

func (err *ProviderError) Error() string {
	var builder strings.Builder
	if err.Provider != "" {
		builder.WriteString(err.Provider)
		builder.WriteString(": ")
	}
	switch err.Kind {
	case KindNetwork:
		builder.WriteString("network error")
	case KindAPI:
		if err.StatusCode != 0 {
			fmt.Fprintf(&builder, "api error (HTTP %d)", err.StatusCode)
		} else {
			builder.WriteString("api error")
		}
	case KindRateLimited:
		fmt.Fprintf(&builder, "rate limited, retry after %s", err.RetryAfter)
	case KindAuth:
		builder.WriteString("authentication failed")
	case KindConfig:
		builder.WriteString("invalid configuration")
	default:
		builder.WriteString(err.Kind.String())
	}
	if err.Message != "" {
		builder.WriteString(": ")
		builder.WriteString(err.Message)
	}
	return builder.String()
}

func (err *ProviderError) Unwrap() error {
	return err.Err
}

// Retryable reports whether re-issuing the same request later may
// succeed: network failures, rate limits, and 5xx API errors.
func (err *ProviderError) Retryable() bool {
	switch err.Kind {
	case KindNetwork, KindRateLimited:
		return true
	case KindAPI:
		return err.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// AsProviderError extracts a [*ProviderError] from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var providerError *ProviderError
	if errors.As(err, &providerError) {
		return providerError, true
	}
	return nil, false
}

// IsKind reports whether err's chain contains a [*ProviderError] of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	providerError, ok := AsProviderError(err)
	return ok && providerError.Kind == kind
}

func configError(provider, format string, args ...any) *ProviderError {
	return &ProviderError{
		Kind:     KindConfig,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
	}
}

// redacted replaces credential occurrences in error text.
const redacted = "[REDACTED]"

// scrub removes every non-empty secret from text.
func scrub(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, redacted)
	}
	return text
}
