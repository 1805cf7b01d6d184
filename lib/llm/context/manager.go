// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/bureau-foundation/converse/lib/llm"
)

// Preparer decides which messages to send for the next completion.
// It is called once per turn, before the request, with the full stored
// history. Implementations never modify the history they are given;
// any compression is reported through [Result] for the caller to
// persist.
//
// A conversation's turns are strictly sequential, so Preparer
// implementations need not be safe for concurrent use.
type Preparer interface {
	PrepareContext(ctx context.Context, history []Entry, budget Budget) (Result, error)
}

// Entry is one message of stored history. Summary marks a message the
// context manager synthesized on an earlier turn; such messages carry
// the System role but are conversation history, not instructions, and
// may themselves be compressed again.
type Entry struct {
	Message llm.Message
	Summary bool
}

// instruction reports whether the entry is part of the application's
// fixed instructions, which are budgeted separately and never
// compressed.
func (entry Entry) instruction() bool {
	return entry.Message.Role == llm.RoleSystem && !entry.Summary
}

// DefaultTriggerRatio is the fraction of the token budget at which
// compression starts, leaving headroom for the next user message and
// the response.
const DefaultTriggerRatio = 0.75

// defaultSystemTokens is the instruction budget used by
// [BudgetForModel].
const defaultSystemTokens = 4096

// Budget bounds the estimated token cost of one request.
type Budget struct {
	// Tokens is the maximum estimated cost of conversation history,
	// excluding fixed instructions.
	Tokens int

	// TriggerRatio is the fraction of Tokens at which compression
	// starts. Zero or a value outside (0, 1] means DefaultTriggerRatio.
	TriggerRatio float64

	// SystemTokens is the separate allowance for fixed instructions.
	// Zero disables the check.
	SystemTokens int
}

// Threshold returns the estimated history cost at or above which
// compression is triggered.
func (budget Budget) Threshold() int {
	ratio := budget.TriggerRatio
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultTriggerRatio
	}
	return int(float64(budget.Tokens) * ratio)
}

// exhausted reports whether the budget leaves no room for history at
// all, as when the output reservation and the instruction allowance
// consume the whole context window. No compression can meet such a
// budget, so strategies pass history through unchanged.
func (budget Budget) exhausted() bool {
	return budget.Tokens <= 0
}

// Result is the outcome of preparing one request's context.
type Result struct {
	// Messages is the message set to send: fixed instructions first,
	// then the (possibly compressed) history.
	Messages []llm.Message

	// WasSummarized is true when older history was replaced by a
	// synthesized summary. Summary is set exactly when it is true.
	WasSummarized bool
	Summary       *Summary

	// Evicted is the number of history messages the truncating
	// strategy dropped.
	Evicted int

	// EstimatedTokens is the estimated cost of the history portion of
	// Messages.
	EstimatedTokens int

	// OverBudget is set when the history portion of Messages still
	// meets or exceeds the threshold and nothing more could be done.
	// The caller sends it anyway and lets the backend decide.
	OverBudget bool

	// SystemOverBudget is set when the fixed instructions alone exceed
	// Budget.SystemTokens.
	SystemOverBudget bool
}

// Summary describes a compression for durable storage: Message
// replaces the first Replaced history entries (instructions excluded),
// whose content hashes to Digest.
type Summary struct {
	Message  llm.Message
	Replaced int
	Digest   string
}

// splitHistory separates fixed instructions from compressible history,
// preserving order within each.
func splitHistory(history []Entry) (instructions, conversation []llm.Message) {
	for _, entry := range history {
		if entry.instruction() {
			instructions = append(instructions, entry.Message)
		} else {
			conversation = append(conversation, entry.Message)
		}
	}
	return instructions, conversation
}

// assemble returns instructions followed by history in a fresh slice.
func assemble(instructions []llm.Message, history ...[]llm.Message) []llm.Message {
	size := len(instructions)
	for _, part := range history {
		size += len(part)
	}
	messages := make([]llm.Message, 0, size)
	messages = append(messages, instructions...)
	for _, part := range history {
		messages = append(messages, part...)
	}
	return messages
}

// baseResult fills in the fields every strategy computes the same way
// and returns the split history.
func baseResult(estimator TokenEstimator, history []Entry, budget Budget) (Result, []llm.Message, []llm.Message) {
	instructions, conversation := splitHistory(history)
	result := Result{
		Messages:        assemble(instructions, conversation),
		EstimatedTokens: estimator.EstimateTokens(conversation),
	}
	if budget.SystemTokens > 0 && estimator.EstimateTokens(instructions) > budget.SystemTokens {
		result.SystemOverBudget = true
	}
	return result, instructions, conversation
}

// Unbounded passes history through unchanged. Useful when the caller
// manages context externally, and in tests.
type Unbounded struct {
	Estimator TokenEstimator
}

// PrepareContext returns the history as-is. OverBudget is still
// reported so the caller can warn; with an exhausted budget any
// history is over it.
func (manager Unbounded) PrepareContext(_ context.Context, history []Entry, budget Budget) (Result, error) {
	estimator := manager.Estimator
	if estimator == nil {
		estimator = NewCharEstimator()
	}
	result, _, conversation := baseResult(estimator, history, budget)
	result.OverBudget = len(conversation) > 0 && result.EstimatedTokens >= budget.Threshold()
	return result, nil
}
