// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable source of the current time.
//
// Code that needs wall-clock time (Retry-After dates, transcript
// timestamps) accepts a Clock instead of calling time.Now. Production
// wiring uses Real(); tests use Fake() and move time explicitly with
// Set or Advance.
package clock
