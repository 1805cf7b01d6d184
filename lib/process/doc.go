// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint helpers for the converse
// binary: reporting an error from run() to stderr, where the
// structured logger may not exist yet, and choosing the exit status.
//
// run() returns an [*ExitError] to select a status other than 1, such
// as 2 for command-line usage errors. An ExitError with a nil Err
// exits silently; the caller has already printed what the user needs.
package process
