// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "strings"

// modelRegistry maps model identifiers to context window sizes in
// tokens, from provider documentation as of early 2026. Unknown models
// fall back to defaultContextWindow; configuration can always set the
// budget explicitly.
var modelRegistry = map[string]int{
	// Anthropic.
	"claude-opus-4-6":            200_000,
	"claude-sonnet-4-5-20250929": 200_000,
	"claude-haiku-4-5-20251001":  200_000,
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,

	// OpenAI.
	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,
	"gpt-4-turbo": 128_000,
	"gpt-4":       8_192,
	"o1":          200_000,
	"o3":          200_000,
	"o3-mini":     200_000,

	// Common Ollama tags. Ollama serves a smaller window than the
	// model supports unless num_ctx is raised.
	"llama3":   8_192,
	"llama3.1": 8_192,
	"llama3.2": 8_192,
	"mistral":  8_192,
	"qwen2.5":  8_192,
	"gemma2":   8_192,
}

// defaultContextWindow is used for models not in the registry.
const defaultContextWindow = 8_192

// ContextWindowForModel returns the context window in tokens for
// model. An Ollama-style tag suffix (":8b", ":latest") is ignored when
// the exact name is unknown.
func ContextWindowForModel(model string) int {
	if window, found := modelRegistry[model]; found {
		return window
	}
	if base, _, tagged := strings.Cut(model, ":"); tagged {
		if window, found := modelRegistry[base]; found {
			return window
		}
	}
	return defaultContextWindow
}

// BudgetForModel derives a budget from model's context window, less
// the output reservation and the instruction allowance. The result is
// clamped at zero.
func BudgetForModel(model string, maxOutputTokens int) Budget {
	tokens := ContextWindowForModel(model) - maxOutputTokens - defaultSystemTokens
	if tokens < 0 {
		tokens = 0
	}
	return Budget{
		Tokens:       tokens,
		TriggerRatio: DefaultTriggerRatio,
		SystemTokens: defaultSystemTokens,
	}
}
