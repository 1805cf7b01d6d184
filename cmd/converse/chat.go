// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/converse/lib/config"
	"github.com/bureau-foundation/converse/lib/llm"
	llmcontext "github.com/bureau-foundation/converse/lib/llm/context"
	"github.com/bureau-foundation/converse/lib/transcript"
)

// defaultOutputReservation is the response allowance subtracted from
// the context window when neither the flag nor the provider sets a
// token cap.
const defaultOutputReservation = 1024

// chat runs turns of one session against one provider.
type chat struct {
	provider llm.Provider
	preparer llmcontext.Preparer
	budget   llmcontext.Budget

	// estimator is shared with the preparer and calibrated from the
	// input token counts the backend reports, so later turns in an
	// interactive session estimate more closely.
	estimator *llmcontext.CharEstimator

	store     *transcript.Store
	sessionID string

	// instructions seeds a new session's transcript.
	instructions string

	model       string
	temperature float64
	maxTokens   int

	output  io.Writer
	notices *notices
	logger  *slog.Logger
}

// chatSettings are the per-invocation request overrides.
type chatSettings struct {
	sessionID   string
	model       string
	temperature float64
	maxTokens   int
}

func newChat(configuration *config.Config, provider llm.Provider, settings chatSettings,
	output io.Writer, notices *notices, logger *slog.Logger) *chat {
	logger = logger.With("provider", provider.Name(), "session", settings.sessionID)

	providerConfig, _ := configuration.Provider(provider.Name())
	model := settings.model
	if model == "" {
		model = providerConfig.Model
	}
	reservation := settings.maxTokens
	if reservation == 0 {
		reservation = providerConfig.MaxTokens
	}
	if reservation == 0 {
		reservation = defaultOutputReservation
	}
	budget := configuration.Budget(model, reservation)
	if budget.Tokens == 0 {
		logger.Warn("no room for history in the model's context window, sending it uncompressed; set context.budget_tokens",
			"model", model, "window", llmcontext.ContextWindowForModel(model))
	}

	estimator := llmcontext.NewCharEstimator()
	return &chat{
		provider:     provider,
		preparer:     newPreparer(configuration.Context, provider, estimator, logger),
		budget:       budget,
		estimator:    estimator,
		store:        transcript.NewStore(configuration.Sessions.Directory, nil),
		sessionID:    settings.sessionID,
		instructions: configuration.Context.Instructions,
		model:        settings.model,
		temperature:  settings.temperature,
		maxTokens:    settings.maxTokens,
		output:       output,
		notices:      notices,
		logger:       logger,
	}
}

// newPreparer selects the context strategy.
func newPreparer(settings config.ContextConfig, provider llm.Provider,
	estimator llmcontext.TokenEstimator, logger *slog.Logger) llmcontext.Preparer {
	switch settings.Strategy {
	case config.StrategyTruncate:
		return llmcontext.NewTruncating(estimator, logger)
	case config.StrategyNone:
		return llmcontext.Unbounded{Estimator: estimator}
	default:
		return llmcontext.NewSummarizing(provider, llmcontext.SummarizingOptions{
			Model:            settings.SummaryModel,
			MaxSummaryTokens: settings.SummaryMaxTokens,
			Estimator:        estimator,
			Logger:           logger,
		})
	}
}

// turn sends prompt with the session's history, streams the answer to
// the output, and saves the session. A cancelled ctx abandons the
// stream and returns errInterrupted; the session file is then left as
// it was.
func (chat *chat) turn(ctx context.Context, prompt string) error {
	session, err := chat.store.Load(chat.sessionID)
	if err != nil {
		return err
	}
	now := chat.store.Now()
	if len(session.Entries) == 0 && chat.instructions != "" {
		session.Append(now, llm.SystemMessage(chat.instructions))
	}
	session.Append(now, llm.UserMessage(prompt))

	prepared, err := chat.preparer.PrepareContext(ctx, session.Active(), chat.budget)
	if err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		var summarizationError *llmcontext.SummarizationError
		if !errors.As(err, &summarizationError) {
			return err
		}
		chat.logger.Warn("sending the full history", "error", err)
	}
	switch {
	case prepared.WasSummarized:
		chat.notices.printf("(earlier conversation summarized)")
	case prepared.Evicted > 0:
		chat.notices.printf("(%d earlier messages left out)", prepared.Evicted)
	}
	if prepared.OverBudget {
		chat.logger.Debug("history exceeds the context budget",
			"estimated", prepared.EstimatedTokens, "threshold", chat.budget.Threshold())
	}

	reply, usage, err := chat.stream(ctx, llm.Request{
		Messages:    prepared.Messages,
		Model:       chat.model,
		Temperature: chat.temperature,
		MaxTokens:   chat.maxTokens,
	})
	if err != nil {
		return err
	}
	if usage.InputTokens > 0 {
		chat.estimator.RecordUsage(prepared.Messages, usage.InputTokens)
		chat.logger.Debug("calibrated token estimate",
			"input_tokens", usage.InputTokens,
			"characters_per_token", chat.estimator.CharactersPerToken())
	}

	if prepared.Summary != nil {
		if err := session.ApplySummary(now, *prepared.Summary); err != nil {
			return fmt.Errorf("recording summary: %w", err)
		}
	}
	session.Append(chat.store.Now(), llm.AssistantMessage(reply))
	session.Provider = chat.provider.Name()
	return chat.store.Save(session)
}

// stream runs one completion, copying text to the output as it
// arrives, and returns the reply with the backend's token usage.
// Cancelling ctx closes the stream, which unblocks a pending read.
func (chat *chat) stream(ctx context.Context, request llm.Request) (string, llm.Usage, error) {
	stream, err := chat.provider.Complete(ctx, request)
	if err != nil {
		return "", llm.Usage{}, err
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	chat.logger.Debug("streaming completion", "request_id", stream.RequestID())
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, llm.ErrStreamClosed) {
				finishLine(chat.output, stream.Text())
				chat.notices.printf("(interrupted)")
				return "", llm.Usage{}, errInterrupted
			}
			finishLine(chat.output, stream.Text())
			return "", llm.Usage{}, err
		}
		io.WriteString(chat.output, chunk.Text)
	}

	reply := stream.Text()
	finishLine(chat.output, reply)
	return reply, stream.Usage(), nil
}

// finishLine ends partial output with a newline so whatever follows
// starts on its own line.
func finishLine(output io.Writer, written string) {
	if written != "" && !strings.HasSuffix(written, "\n") {
		io.WriteString(output, "\n")
	}
}
