// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// converse sends a chat turn to a configured language model backend
// and streams the answer to stdout.
//
// The prompt comes from the command-line arguments, or from stdin when
// stdin is not a terminal. With neither, converse reads one prompt per
// line until end of input.
//
// Each session (--session, default "default") keeps its transcript
// under the configured sessions directory. Before every turn the
// history is fitted to the model's context budget using the configured
// strategy; when older turns are summarized, a faint
// "(earlier conversation summarized)" line is printed and the summary
// replaces them in the transcript.
//
// Ctrl-C abandons the answer being streamed. Nothing from an
// interrupted turn is saved.
//
// Other modes:
//
//	converse --list      configured providers, default marked with *
//	converse --health    reachability check of every provider
//	converse --version   build information
package main
