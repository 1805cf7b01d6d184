// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bureau-foundation/converse/lib/config"
	"github.com/bureau-foundation/converse/lib/llm"
	"github.com/bureau-foundation/converse/lib/process"
)

// errInterrupted ends a run whose turn the user abandoned with Ctrl-C.
// The status follows the shell convention for SIGINT.
var errInterrupted = &process.ExitError{Code: 130}

// hintedError is an error followed by advice on what to do about it,
// separated by a blank line.
type hintedError struct {
	Err  error
	Hint string
}

func (err *hintedError) Error() string {
	if err.Hint == "" {
		return err.Err.Error()
	}
	return err.Err.Error() + "\n\n" + err.Hint
}

func (err *hintedError) Unwrap() error {
	return err.Err
}

// withHint attaches user advice to err based on the failure kind.
// Errors with nothing useful to add are returned unchanged.
func withHint(err error, configuration *config.Config, configPath string) error {
	if err == nil {
		return nil
	}
	hint := hintFor(err, configuration, configPath)
	if hint == "" {
		return err
	}
	return &hintedError{Err: err, Hint: hint}
}

func hintFor(err error, configuration *config.Config, configPath string) string {
	switch {
	case errors.Is(err, llm.ErrServiceUnreachable):
		// The provider's message already says how to start it.
		return ""
	case errors.Is(err, llm.ErrNoProviders):
		return fmt.Sprintf("Configure at least one usable provider in %s.", configPath)
	case errors.Is(err, llm.ErrProviderNotFound):
		return "Run 'converse --list' to see the configured providers."
	}

	providerError, ok := llm.AsProviderError(err)
	if !ok {
		return ""
	}
	switch providerError.Kind {
	case llm.KindRateLimited:
		return fmt.Sprintf("The backend is throttling requests. Try again in %s.",
			providerError.RetryAfter.Round(time.Second))
	case llm.KindAuth:
		return "The backend rejected the credential. " + credentialAdvice(providerError.Provider, configuration)
	case llm.KindConfig:
		return credentialAdvice(providerError.Provider, configuration)
	case llm.KindNetwork:
		return "This may be temporary; retrying may help."
	case llm.KindAPI:
		if providerError.StatusCode >= http.StatusInternalServerError {
			return "The backend failed; retrying later may help."
		}
	}
	return ""
}

// credentialAdvice names the environment variable that supplies the
// provider's credential, when the configuration references one.
func credentialAdvice(providerName string, configuration *config.Config) string {
	if configuration == nil {
		return ""
	}
	provider, found := configuration.Provider(providerName)
	if !found {
		return ""
	}
	if provider.APIKeyVariable != "" {
		return fmt.Sprintf("Check that %s is set to a valid key for provider %q.",
			provider.APIKeyVariable, providerName)
	}
	if provider.Protocol != string(llm.ProtocolOllama) {
		return fmt.Sprintf("Set api_key for provider %q, for example api_key: ${%s}.",
			providerName, suggestedVariable(provider.Protocol))
	}
	return ""
}

func suggestedVariable(protocol string) string {
	switch llm.Protocol(protocol) {
	case llm.ProtocolAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
