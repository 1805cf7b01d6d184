// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "github.com/bureau-foundation/converse/lib/llm"

// defaultCharactersPerToken is the initial ratio before calibration.
// BPE tokenizers average 3.5-4.5 characters per token on English
// prose; 4.0 errs toward overestimating.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor is the weight of a new observation in the
// running ratio.
const defaultSmoothingFactor = 0.3

// messageOverheadCharacters is the fixed cost charged per message for
// role markers and wire framing.
const messageOverheadCharacters = 20

// TokenEstimator estimates the token count of a message slice without
// calling a tokenizer.
type TokenEstimator interface {
	// EstimateTokens returns the estimated token count for messages.
	// An empty slice costs zero.
	EstimateTokens(messages []llm.Message) int

	// RecordUsage calibrates the estimator against the input token
	// count a backend reported for exactly these messages.
	RecordUsage(messages []llm.Message, actualInputTokens int64)
}

// CharEstimator estimates tokens as characters divided by a ratio.
// The ratio starts at 4.0 and, when the caller has real usage numbers
// from a backend, tracks them via an exponential moving average.
//
// A CharEstimator is not safe for concurrent use.
type CharEstimator struct {
	charactersPerToken float64
	smoothingFactor    float64
	observationCount   int
}

// NewCharEstimator returns a CharEstimator at the default ratio.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// EstimateTokens rounds up: overestimating triggers compression
// slightly early, underestimating risks a rejected request.
func (estimator *CharEstimator) EstimateTokens(messages []llm.Message) int {
	characters := messagesCharCount(messages)
	if characters == 0 {
		return 0
	}
	return int(float64(characters)/estimator.charactersPerToken) + 1
}

// RecordUsage replaces the default ratio with the first observation
// outright and blends later observations into the running ratio.
// Non-positive token counts are ignored.
func (estimator *CharEstimator) RecordUsage(messages []llm.Message, actualInputTokens int64) {
	if actualInputTokens <= 0 {
		return
	}
	characters := messagesCharCount(messages)
	if characters == 0 {
		return
	}

	observedRatio := float64(characters) / float64(actualInputTokens)
	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observedRatio
		return
	}
	estimator.charactersPerToken = estimator.smoothingFactor*observedRatio +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}

// CharactersPerToken returns the current ratio.
func (estimator *CharEstimator) CharactersPerToken() float64 {
	return estimator.charactersPerToken
}

func messageCharCount(message llm.Message) int {
	return len(message.Content) + messageOverheadCharacters
}

func messagesCharCount(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += messageCharCount(messages[i])
	}
	return total
}
