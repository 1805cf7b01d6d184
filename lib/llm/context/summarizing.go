// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/converse/lib/llm"
)

// DefaultMaxSummaryTokens caps the length of a generated summary.
const DefaultMaxSummaryTokens = 1024

// SummaryPrefix opens every synthesized summary message.
const SummaryPrefix = "Summary of the earlier conversation:\n"

// summarizationInstructions is the system prompt for the summarization
// request. The conversation itself is sent as one plain-text user
// message, not as structured turns.
const summarizationInstructions = "You compress conversation transcripts. " +
	"Write a concise summary of the transcript the user provides, in the third person. " +
	"Keep facts, names, numbers, decisions, and open questions. " +
	"Drop pleasantries. Reply with the summary only."

// errEmptySummary is the cause when the backend returns only
// whitespace.
var errEmptySummary = errors.New("backend returned an empty summary")

// SummarizationError reports that compression was needed but the
// summarization request failed. The accompanying [Result] carries the
// original, uncompressed history; nothing was partially applied.
type SummarizationError struct {
	// Provider is the backend that was asked to summarize.
	Provider string

	// Messages is how many history messages would have been replaced.
	Messages int

	Err error
}

func (err *SummarizationError) Error() string {
	return fmt.Sprintf("summarizing %d messages via %s: %v", err.Messages, err.Provider, err.Err)
}

func (err *SummarizationError) Unwrap() error {
	return err.Err
}

// SummarizingOptions configures [NewSummarizing].
type SummarizingOptions struct {
	// Model overrides the provider's configured model for
	// summarization requests. Empty uses the provider default.
	Model string

	// MaxSummaryTokens caps the summary's output. Zero means
	// DefaultMaxSummaryTokens.
	MaxSummaryTokens int

	// Estimator defaults to a new [CharEstimator].
	Estimator TokenEstimator

	// Logger receives summarization events. Nil discards.
	Logger *slog.Logger
}

// Summarizing compresses history by replacing its older half with a
// summary written by the same provider that serves the conversation.
type Summarizing struct {
	provider         llm.Provider
	model            string
	maxSummaryTokens int
	estimator        TokenEstimator
	logger           *slog.Logger
}

// NewSummarizing returns a summarizing strategy that sends its
// summarization requests through provider.
func NewSummarizing(provider llm.Provider, options SummarizingOptions) *Summarizing {
	summarizing := &Summarizing{
		provider:         provider,
		model:            options.Model,
		maxSummaryTokens: options.MaxSummaryTokens,
		estimator:        options.Estimator,
		logger:           options.Logger,
	}
	if summarizing.maxSummaryTokens <= 0 {
		summarizing.maxSummaryTokens = DefaultMaxSummaryTokens
	}
	if summarizing.estimator == nil {
		summarizing.estimator = NewCharEstimator()
	}
	if summarizing.logger == nil {
		summarizing.logger = slog.New(slog.DiscardHandler)
	}
	summarizing.logger = summarizing.logger.With("provider", provider.Name())
	return summarizing
}

// PrepareContext returns history unchanged while its estimated cost is
// below budget.Threshold(). At or above it, the older part of history
// is summarized and the result is the fixed instructions, one summary
// message, and the untouched recent part. The recent part is the
// newest half of history, rounded down, so three messages become a
// summary of two plus the last one.
//
// History with fewer than two compressible messages cannot be split;
// it is returned unchanged with OverBudget set. So is any history when
// the budget has no room at all (Tokens not positive): summarizing
// would cost a request on every turn and still not fit.
//
// When summarization fails, the returned Result holds the original
// history (OverBudget set) and the error is a *SummarizationError.
// The caller chooses between sending the over-budget request and
// surfacing the failure.
func (summarizing *Summarizing) PrepareContext(ctx context.Context, history []Entry, budget Budget) (Result, error) {
	result, instructions, conversation := baseResult(summarizing.estimator, history, budget)
	if result.SystemOverBudget {
		summarizing.logger.Warn("fixed instructions exceed their budget",
			"budget", budget.SystemTokens,
			"estimated", summarizing.estimator.EstimateTokens(instructions))
	}

	threshold := budget.Threshold()
	if budget.exhausted() {
		result.OverBudget = len(conversation) > 0
		return result, nil
	}
	if result.EstimatedTokens < threshold {
		return result, nil
	}
	if len(conversation) < 2 {
		result.OverBudget = true
		summarizing.logger.Warn("history over budget but too short to summarize",
			"messages", len(conversation),
			"estimated", result.EstimatedTokens,
			"threshold", threshold)
		return result, nil
	}

	keep := len(conversation) / 2
	older := conversation[:len(conversation)-keep]
	recent := conversation[len(conversation)-keep:]

	text, err := summarizing.summarize(ctx, older)
	if err != nil {
		result.OverBudget = true
		summarizing.logger.Warn("summarization failed, history left unchanged",
			"messages", len(older),
			"error", err)
		return result, &SummarizationError{
			Provider: summarizing.provider.Name(),
			Messages: len(older),
			Err:      err,
		}
	}

	summary := llm.SystemMessage(SummaryPrefix + text)
	compressed := assemble([]llm.Message{summary}, recent)
	estimated := summarizing.estimator.EstimateTokens(compressed)
	summarizing.logger.Info("summarized conversation history",
		"replaced", len(older),
		"kept", len(recent),
		"estimated_before", result.EstimatedTokens,
		"estimated_after", estimated)

	return Result{
		Messages:      assemble(instructions, compressed),
		WasSummarized: true,
		Summary: &Summary{
			Message:  summary,
			Replaced: len(older),
			Digest:   Digest(older),
		},
		EstimatedTokens:  estimated,
		OverBudget:       estimated >= threshold,
		SystemOverBudget: result.SystemOverBudget,
	}, nil
}

// summarize sends messages as a plain-text transcript and returns the
// trimmed summary text.
func (summarizing *Summarizing) summarize(ctx context.Context, messages []llm.Message) (string, error) {
	stream, err := summarizing.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(summarizationInstructions),
			llm.UserMessage(renderTranscript(messages)),
		},
		Model:       summarizing.model,
		Temperature: 0,
		MaxTokens:   summarizing.maxSummaryTokens,
	})
	if err != nil {
		return "", err
	}
	text, err := llm.ReadAll(stream)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptySummary
	}
	return text, nil
}

// renderTranscript formats messages as labelled paragraphs. A prior
// summary is labelled as such so the new summary folds it in.
func renderTranscript(messages []llm.Message) string {
	var builder strings.Builder
	for i, message := range messages {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		switch message.Role {
		case llm.RoleUser:
			builder.WriteString("User: ")
		case llm.RoleAssistant:
			builder.WriteString("Assistant: ")
		default:
			builder.WriteString("Earlier summary: ")
		}
		builder.WriteString(strings.TrimPrefix(message.Content, SummaryPrefix))
	}
	return builder.String()
}
