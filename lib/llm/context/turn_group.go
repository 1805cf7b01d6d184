// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "github.com/bureau-foundation/converse/lib/llm"

// turnGroup is a contiguous run of history: a user message and the
// replies that follow it up to the next user message. The truncating
// strategy drops whole groups so a reply never loses its prompt.
type turnGroup struct {
	startIndex int // inclusive
	endIndex   int // exclusive
}

// identifyTurnGroups partitions messages into turn groups. Messages
// before the first user message (typically a prior summary) form a
// leading group of their own. Returns nil for an empty slice.
func identifyTurnGroups(messages []llm.Message) []turnGroup {
	var groups []turnGroup
	currentStart := 0
	for i, message := range messages {
		if message.Role == llm.RoleUser && i > currentStart {
			groups = append(groups, turnGroup{startIndex: currentStart, endIndex: i})
			currentStart = i
		}
	}
	if currentStart < len(messages) {
		groups = append(groups, turnGroup{startIndex: currentStart, endIndex: len(messages)})
	}
	return groups
}
