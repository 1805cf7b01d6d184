// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package context keeps a conversation's history within a token budget.
//
// Before each completion request the caller passes the stored history
// to a [Preparer], which returns the messages to send. [Summarizing]
// replaces the older half of an over-budget history with a summary
// written by the conversation's own provider; [Truncating] drops the
// oldest turn groups instead; [Unbounded] sends everything.
//
// Costs are estimated, never measured: [CharEstimator] divides
// character counts by a ratio, trading precision for zero network cost
// and provider independence. Compression starts at a fraction of the
// budget ([Budget.Threshold]), not at the budget itself, so the next
// user message and the response still fit.
//
// System-role messages in the history are the application's fixed
// instructions. They are budgeted separately, always sent first, and
// never compressed. A synthesized summary is also System-role but is
// marked in its [Entry] as history.
//
// Preparers never change stored history. A summarization is reported
// in [Result.Summary], with a [Digest] of the messages it replaced, so
// durable storage can record it as a replacement for the originals.
package context
