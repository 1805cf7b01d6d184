// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/converse/lib/clock"
	"github.com/bureau-foundation/converse/lib/netutil"
	"github.com/bureau-foundation/converse/lib/version"
)

// endpoint is the HTTP plumbing shared by every adapter: one client
// per provider instance, header construction, lazy stream opening, and
// error classification.
type endpoint struct {
	provider   string
	baseURL    string
	credential string
	client     *http.Client
	logger     *slog.Logger
	clock      clock.Clock

	// authorize sets the adapter's authentication and version headers.
	authorize func(http.Header)

	// unreachableHint, when set, replaces the message of a
	// connection-refused error and marks it ErrServiceUnreachable.
	unreachableHint string
}

func newEndpoint(name, baseURL string, config ProviderConfig, options Options) endpoint {
	return endpoint{
		provider:   name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: config.APIKey,
		client:     newHTTPClient(config),
		logger:     options.logger().With("provider", name),
		clock:      clock.OrReal(options.Clock),
	}
}

// newHTTPClient builds the provider's client. The client timeout covers
// the whole response, so it is sized for a long streamed answer.
func newHTTPClient(config ProviderConfig) *http.Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// newRequest builds an outbound request with JSON body (when body is
// non-nil) and the adapter's headers. Failures are request
// construction errors: KindAPI with no status, since nothing was sent.
func (endpoint *endpoint) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ProviderError{
				Kind:     KindAPI,
				Provider: endpoint.provider,
				Message:  "encoding request: " + err.Error(),
				Err:      err,
			}
		}
		reader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint.baseURL+path, reader)
	if err != nil {
		return nil, &ProviderError{
			Kind:     KindAPI,
			Provider: endpoint.provider,
			Message:  scrub("building request: "+err.Error(), endpoint.credential),
			Err:      err,
		}
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", version.UserAgent())
	if endpoint.authorize != nil {
		endpoint.authorize(request.Header)
	}
	return request, nil
}

// openStream prepares a streaming POST. The request is built now, so
// construction failures are synchronous; the round trip is deferred to
// the returned stream's first Next. newDecoder binds the adapter's
// framing to the response body; the decoder reports token usage
// through the func it is given.
func (endpoint *endpoint) openStream(ctx context.Context, path string, body any, accept string,
	newDecoder func(body io.Reader, logger *slog.Logger, usage usageFunc) decodeFunc) (*ChunkStream, error) {

	streamContext, cancel := context.WithCancel(ctx)
	request, err := endpoint.newRequest(streamContext, http.MethodPost, path, body)
	if err != nil {
		cancel()
		return nil, err
	}
	requestID := uuid.NewString()
	request.Header.Set("Accept", accept)
	request.Header.Set("X-Request-Id", requestID)
	logger := endpoint.logger.With("request_id", requestID)

	var stream *ChunkStream
	open := func() (io.ReadCloser, decodeFunc, error) {
		logger.Debug("opening completion stream", "url", request.URL.Redacted())
		response, err := endpoint.client.Do(request)
		if err != nil {
			return nil, nil, err
		}
		if response.StatusCode < 200 || response.StatusCode > 299 {
			defer response.Body.Close()
			providerError := endpoint.responseError(response)
			logger.Debug("completion request rejected",
				"status", response.StatusCode, "kind", providerError.Kind.String())
			return nil, nil, providerError
		}
		return response.Body, newDecoder(response.Body, logger, stream.recordUsage), nil
	}
	stream = newChunkStream(endpoint.provider, requestID, open, cancel, endpoint.transportError)
	return stream, nil
}

// get performs a small GET used by health checks and discards the
// body. Non-2xx statuses are classified like completion failures.
func (endpoint *endpoint) get(ctx context.Context, path string) error {
	request, err := endpoint.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	response, err := endpoint.client.Do(request)
	if err != nil {
		return endpoint.transportError(err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		return endpoint.responseError(response)
	}
	return netutil.DrainAndClose(response.Body)
}

// truncated reports a stream whose body ended before the backend's
// end marker: the connection dropped mid-response.
func (endpoint *endpoint) truncated(marker string) *ProviderError {
	return &ProviderError{
		Kind:     KindNetwork,
		Provider: endpoint.provider,
		Message:  fmt.Sprintf("stream ended before %s", marker),
		Err:      io.ErrUnexpectedEOF,
	}
}
