// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/converse/lib/config"
	"github.com/bureau-foundation/converse/lib/llm"
)

func TestWithHint(t *testing.T) {
	t.Parallel()

	configuration := config.Default()
	configuration.Providers = []config.ProviderConfig{
		{Name: "gpt", Protocol: "openai", APIKeyVariable: "OPENAI_API_KEY"},
		{Name: "claude", Protocol: "anthropic"},
		{Name: "local", Protocol: "ollama"},
	}

	tests := []struct {
		name string
		err  error
		want string // empty: returned unchanged
	}{
		{"rate limited", &llm.ProviderError{Kind: llm.KindRateLimited, Provider: "gpt", RetryAfter: 1500 * time.Millisecond}, "Try again in 2s"},
		{"auth names the variable", &llm.ProviderError{Kind: llm.KindAuth, Provider: "gpt"}, "OPENAI_API_KEY"},
		{"missing key suggests a reference", &llm.ProviderError{Kind: llm.KindConfig, Provider: "claude"}, "${ANTHROPIC_API_KEY}"},
		{"local config error", &llm.ProviderError{Kind: llm.KindConfig, Provider: "local"}, ""},
		{"network", &llm.ProviderError{Kind: llm.KindNetwork, Provider: "gpt"}, "temporary"},
		{"server error", &llm.ProviderError{Kind: llm.KindAPI, Provider: "gpt", StatusCode: 503}, "retrying later"},
		{"client error", &llm.ProviderError{Kind: llm.KindAPI, Provider: "gpt", StatusCode: 400}, ""},
		{"service unreachable", &llm.ProviderError{Kind: llm.KindNetwork, Provider: "local",
			Message: "start it", Err: llm.ErrServiceUnreachable}, ""},
		{"no providers", fmt.Errorf("%w: none configured", llm.ErrNoProviders), "/etc/converse.yaml"},
		{"unknown provider", fmt.Errorf("%w: %q", llm.ErrProviderNotFound, "x"), "converse --list"},
		{"unrelated", errors.New("disk full"), ""},
		{"interrupted", errInterrupted, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := withHint(test.err, configuration, "/etc/converse.yaml")
			if !errors.Is(got, test.err) {
				t.Errorf("withHint result %v does not wrap the original", got)
			}
			if test.want == "" {
				if got != test.err {
					t.Errorf("withHint = %q, want the error unchanged", got)
				}
				return
			}
			text := got.Error()
			if !strings.HasPrefix(text, test.err.Error()+"\n\n") || !strings.Contains(text, test.want) {
				t.Errorf("withHint = %q, want the error, a blank line, and a hint mentioning %q", text, test.want)
			}
		})
	}

	if withHint(nil, configuration, "") != nil {
		t.Error("withHint(nil) is not nil")
	}
}

func TestNoticesArePlainOffTerminal(t *testing.T) {
	t.Parallel()

	var output bytes.Buffer
	newNotices(&output, false, func(string) string { return "" }).printf("(%d left out)", 3)
	if output.String() != "(3 left out)\n" {
		t.Errorf("output = %q", output.String())
	}

	output.Reset()
	newNotices(&output, true, func(name string) string {
		if name == "NO_COLOR" {
			return "1"
		}
		return ""
	}).printf("plain")
	if output.String() != "plain\n" {
		t.Errorf("NO_COLOR output = %q", output.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var quiet bytes.Buffer
	logger := newLogger(&quiet, false, false)
	logger.Info("routine")
	logger.Warn("attention", "provider", "local")
	if strings.Contains(quiet.String(), "routine") {
		t.Errorf("info record written at the default level: %q", quiet.String())
	}
	if !strings.Contains(quiet.String(), `"msg":"attention"`) || !strings.Contains(quiet.String(), `"provider":"local"`) {
		t.Errorf("JSON output = %q", quiet.String())
	}

	var verbose bytes.Buffer
	newLogger(&verbose, true, true).Debug("detail")
	if !strings.Contains(verbose.String(), "detail") {
		t.Errorf("console output = %q, want the debug record", verbose.String())
	}
}
