// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// OrReal returns clock, or Real() when clock is nil. Constructors use
// it so a zero-valued options struct gets production behavior.
func OrReal(clock Clock) Clock {
	if clock == nil {
		return Real()
	}
	return clock
}
