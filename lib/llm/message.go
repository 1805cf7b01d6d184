// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "slices"

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem carries instructions and conversation summaries.
	RoleSystem Role = "system"

	// RoleUser carries human input.
	RoleUser Role = "user"

	// RoleAssistant carries model output.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the three known roles.
func (role Role) Valid() bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn. Messages are values: once
// built they are not modified, and ordering within a conversation is
// significant. Role sequencing rules are backend-specific and enforced
// (or transformed) by each provider, not by this type.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage returns a system-role message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage returns a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage returns an assistant-role message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Request is a single chat completion request. Build a fresh Request
// per call; providers clone it before translation, so later changes
// by the caller do not affect an in-flight stream.
type Request struct {
	// Messages is the ordered conversation to complete.
	Messages []Message

	// Model is the backend model identifier. Empty means the
	// provider's configured model.
	Model string

	// Temperature is the sampling temperature. It is always sent.
	Temperature float64

	// MaxTokens caps the generated tokens. Zero means unset: the
	// provider's configured cap applies, and backends that require a
	// cap fall back to their own default.
	MaxTokens int
}

// Clone returns a copy of the request that shares no mutable state
// with the original.
func (request Request) Clone() Request {
	request.Messages = slices.Clone(request.Messages)
	return request
}

// Usage is the token accounting a backend reports for one completion.
// A zero field was not reported.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Chunk is one increment of a streamed completion: either text or a
// terminal error. [ChunkStream.Next] reports errors through its error
// return; the Err field is populated only by [ChunkStream.All], which
// has no separate error channel.
type Chunk struct {
	Text string
	Err  error
}
