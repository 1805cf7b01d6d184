// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/converse/lib/netutil"
)

// maxMessageLength bounds backend text copied into an error message
// when the body is not a recognizable JSON envelope.
const maxMessageLength = 512

// responseError classifies a non-2xx response. The caller owns and
// closes the body.
func (endpoint *endpoint) responseError(response *http.Response) *ProviderError {
	body := netutil.ErrorBody(response.Body)
	providerError := &ProviderError{
		Provider:   endpoint.provider,
		StatusCode: response.StatusCode,
		Message:    scrub(errorMessage(body, response.StatusCode), endpoint.credential),
	}
	switch response.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		providerError.Kind = KindAuth
	case http.StatusTooManyRequests:
		providerError.Kind = KindRateLimited
		providerError.RetryAfter = retryAfter(response.Header, body, endpoint.clock.Now())
	default:
		providerError.Kind = KindAPI
	}
	return providerError
}

// transportError classifies a failure that happened before a response
// was received or while reading a streaming body. Caller cancellation
// passes through unchanged: it is not a provider failure.
func (endpoint *endpoint) transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	detail := scrub(err.Error(), endpoint.credential)
	switch {
	case netutil.IsConnectionRefused(err) && endpoint.unreachableHint != "":
		return &ProviderError{
			Kind:     KindNetwork,
			Provider: endpoint.provider,
			Message:  endpoint.unreachableHint,
			Err:      errors.Join(ErrServiceUnreachable, err),
		}
	case netutil.IsTimeout(err):
		detail = "timed out: " + detail
	}
	return &ProviderError{
		Kind:     KindNetwork,
		Provider: endpoint.provider,
		Message:  detail,
		Err:      err,
	}
}

// streamError classifies an error object delivered inside an
// otherwise successful stream. Both event-stream backends send an
// {"error": {"type": ..., "message": ...}} envelope; the type names
// differ but share recognizable stems.
func (endpoint *endpoint) streamError(payload []byte) *ProviderError {
	providerError := &ProviderError{
		Kind:     KindAPI,
		Provider: endpoint.provider,
		Message:  scrub(errorMessage(payload, 0), endpoint.credential),
	}
	errorType := strings.ToLower(gjson.GetBytes(payload, "error.type").String())
	if errorType == "" {
		errorType = strings.ToLower(gjson.GetBytes(payload, "error.code").String())
	}
	switch {
	case strings.Contains(errorType, "rate_limit"):
		providerError.Kind = KindRateLimited
		providerError.RetryAfter = retryAfter(nil, payload, endpoint.clock.Now())
	case strings.Contains(errorType, "overloaded"):
		// Anthropic's overloaded_error maps to its HTTP 529.
		providerError.StatusCode = 529
	case strings.Contains(errorType, "authentication"), strings.Contains(errorType, "invalid_api_key"):
		providerError.Kind = KindAuth
	case strings.Contains(errorType, "server_error"), strings.Contains(errorType, "api_error"):
		providerError.StatusCode = http.StatusInternalServerError
	}
	return providerError
}

// errorMessage extracts a human-readable message from a backend error
// body. Known envelope shapes are tried first; otherwise the trimmed
// body text (bounded) or the HTTP status text is used.
func errorMessage(body []byte, statusCode int) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error", "detail"} {
			result := gjson.GetBytes(body, path)
			if result.Type == gjson.String && strings.TrimSpace(result.String()) != "" {
				return strings.TrimSpace(result.String())
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(statusCode)
	}
	if len(text) > maxMessageLength {
		text = text[:maxMessageLength] + "..."
	}
	return text
}

// retryAfter extracts a rate-limit wait hint. Headers win over body
// fields: retry-after-ms, then Retry-After (delta-seconds or an
// HTTP-date), then a numeric retry_after in the body, in seconds.
// Without any hint, DefaultRetryAfter applies.
func retryAfter(header http.Header, body []byte, now time.Time) time.Duration {
	if value := strings.TrimSpace(header.Get("retry-after-ms")); value != "" {
		if milliseconds, err := strconv.ParseFloat(value, 64); err == nil && milliseconds >= 0 {
			return time.Duration(milliseconds * float64(time.Millisecond))
		}
	}
	if value := strings.TrimSpace(header.Get("Retry-After")); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		if date, err := http.ParseTime(value); err == nil {
			return max(date.Sub(now), 0)
		}
	}
	for _, path := range []string{"error.retry_after", "retry_after"} {
		result := gjson.GetBytes(body, path)
		if result.Type == gjson.Number && result.Float() >= 0 {
			return time.Duration(result.Float() * float64(time.Second))
		}
	}
	return DefaultRetryAfter
}
