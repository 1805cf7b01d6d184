// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript stores a conversation's history between turns.
//
// A [Transcript] is an append-only list of [Record] values. Records
// are never removed: when the context manager summarizes older
// history, the summarized records are marked superseded and the
// summary record is inserted in front of them, so [Transcript.Active]
// yields what the next turn should see while the file still holds the
// full conversation.
//
// Transcripts are stored one file per session by a [Store].
package transcript

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/converse/lib/llm"
	llmcontext "github.com/bureau-foundation/converse/lib/llm/context"
)

// formatVersion is written into every saved transcript. Load rejects
// files from a newer format.
const formatVersion = 1

// ErrDigestMismatch reports that a summary does not describe the
// records it would supersede, typically because the transcript changed
// between preparing the context and applying the summary.
var ErrDigestMismatch = errors.New("transcript: summary digest does not match stored history")

// Record is one stored message.
type Record struct {
	Role    llm.Role `cbor:"role"`
	Content string   `cbor:"content"`

	// Summary marks a message synthesized by the context manager.
	Summary bool `cbor:"summary,omitempty"`

	// Superseded records are kept for the file's history but excluded
	// from Active.
	Superseded bool `cbor:"superseded,omitempty"`

	// Digest is set on summary records: the digest of the records the
	// summary replaced.
	Digest string `cbor:"digest,omitempty"`

	CreatedAt time.Time `cbor:"created_at"`
}

// Transcript is the stored history of one session.
type Transcript struct {
	Version int    `cbor:"version"`
	ID      string `cbor:"id"`

	// Provider is the backend that served the most recent turn.
	Provider string `cbor:"provider,omitempty"`

	CreatedAt time.Time `cbor:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at"`

	Entries []Record `cbor:"entries"`
}

// New returns an empty transcript. An empty id is replaced by a
// random one.
func New(id string, now time.Time) *Transcript {
	if id == "" {
		id = uuid.NewString()
	}
	return &Transcript{
		Version:   formatVersion,
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active returns the non-superseded records as context manager input,
// in stored order.
func (transcript *Transcript) Active() []llmcontext.Entry {
	var active []llmcontext.Entry
	for _, record := range transcript.Entries {
		if record.Superseded {
			continue
		}
		active = append(active, llmcontext.Entry{
			Message: llm.Message{Role: record.Role, Content: record.Content},
			Summary: record.Summary,
		})
	}
	return active
}

// Append records messages as ordinary history.
func (transcript *Transcript) Append(now time.Time, messages ...llm.Message) {
	for _, message := range messages {
		transcript.Entries = append(transcript.Entries, Record{
			Role:      message.Role,
			Content:   message.Content,
			CreatedAt: now,
		})
	}
	transcript.UpdatedAt = now
}

// ApplySummary records a summarization: the first summary.Replaced
// active history records (fixed instructions excluded) are marked
// superseded and the summary record is inserted before them. The
// replaced records must hash to summary.Digest; otherwise nothing is
// changed and the error wraps [ErrDigestMismatch].
func (transcript *Transcript) ApplySummary(now time.Time, summary llmcontext.Summary) error {
	var indexes []int
	for i, record := range transcript.Entries {
		if record.Superseded || (record.Role == llm.RoleSystem && !record.Summary) {
			continue
		}
		indexes = append(indexes, i)
	}
	if summary.Replaced <= 0 || summary.Replaced > len(indexes) {
		return fmt.Errorf("transcript: summary replaces %d records, %d are active", summary.Replaced, len(indexes))
	}
	indexes = indexes[:summary.Replaced]

	replaced := make([]llm.Message, len(indexes))
	for i, index := range indexes {
		replaced[i] = llm.Message{Role: transcript.Entries[index].Role, Content: transcript.Entries[index].Content}
	}
	if llmcontext.Digest(replaced) != summary.Digest {
		return fmt.Errorf("%w (session %s)", ErrDigestMismatch, transcript.ID)
	}

	for _, index := range indexes {
		transcript.Entries[index].Superseded = true
	}
	transcript.Entries = slices.Insert(transcript.Entries, indexes[0], Record{
		Role:      summary.Message.Role,
		Content:   summary.Message.Content,
		Summary:   true,
		Digest:    summary.Digest,
		CreatedAt: now,
	})
	transcript.UpdatedAt = now
	return nil
}
