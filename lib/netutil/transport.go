// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// IsTimeout reports whether err is a deadline expiry: a context
// deadline, an http.Client timeout, or a dial/read timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionRefused reports whether err is a refused TCP connection,
// which for a local backend means nothing is listening on the port.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	var errno unix.Errno
	return errors.As(err, &errno) && errno == unix.ECONNREFUSED
}
