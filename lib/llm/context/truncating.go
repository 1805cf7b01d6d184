// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/converse/lib/llm"
)

// Truncating fits history under the budget by dropping the oldest turn
// groups. It makes no network calls, so it cannot fail; the price is
// that dropped turns are gone from the request entirely. The most
// recent turn group is always kept.
type Truncating struct {
	estimator TokenEstimator
	logger    *slog.Logger
}

// NewTruncating returns a truncating strategy. A nil estimator means a
// new [CharEstimator]; a nil logger discards.
func NewTruncating(estimator TokenEstimator, logger *slog.Logger) *Truncating {
	if estimator == nil {
		estimator = NewCharEstimator()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Truncating{estimator: estimator, logger: logger}
}

// PrepareContext returns history unchanged while its estimated cost is
// below budget.Threshold(). Otherwise it drops whole turn groups,
// oldest first, until the remainder is below the threshold or only the
// current group is left. Fixed instructions are never dropped. A
// budget with no room at all (Tokens not positive) drops nothing and
// reports OverBudget.
func (manager *Truncating) PrepareContext(_ context.Context, history []Entry, budget Budget) (Result, error) {
	result, instructions, conversation := baseResult(manager.estimator, history, budget)
	threshold := budget.Threshold()
	if budget.exhausted() {
		result.OverBudget = len(conversation) > 0
		return result, nil
	}
	if result.EstimatedTokens < threshold {
		return result, nil
	}

	groups := identifyTurnGroups(conversation)
	groupTokens := make([]int, len(groups))
	for i, group := range groups {
		groupTokens[i] = manager.estimator.EstimateTokens(conversation[group.startIndex:group.endIndex])
	}

	remaining := result.EstimatedTokens
	evictedGroups := 0
	for evictedGroups < len(groups)-1 && remaining >= threshold {
		remaining -= groupTokens[evictedGroups]
		evictedGroups++
	}

	var kept []llm.Message
	if len(groups) > 0 {
		kept = conversation[groups[evictedGroups].startIndex:]
	}
	result.Messages = assemble(instructions, kept)
	result.Evicted = len(conversation) - len(kept)
	result.EstimatedTokens = manager.estimator.EstimateTokens(kept)
	result.OverBudget = result.EstimatedTokens >= threshold

	if result.Evicted > 0 {
		manager.logger.Info("truncated conversation history",
			"evicted_messages", result.Evicted,
			"evicted_groups", evictedGroups,
			"estimated", result.EstimatedTokens,
			"threshold", threshold)
	}
	if result.OverBudget {
		manager.logger.Warn("history over budget after truncation",
			"estimated", result.EstimatedTokens,
			"threshold", threshold)
	}
	return result, nil
}
