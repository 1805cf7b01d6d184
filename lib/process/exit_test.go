// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantOutput string
	}{
		{"plain error", errors.New("boom"), ExitFailure, "error: boom\n"},
		{"usage", Usage(errors.New("unknown flag --x")), ExitUsage, "error: unknown flag --x\n"},
		{"wrapped exit", fmt.Errorf("running: %w", &ExitError{Code: 3, Err: errors.New("inner")}), 3, "error: running: inner\n"},
		{"silent", &ExitError{Code: ExitFailure}, ExitFailure, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var output bytes.Buffer
			if code := Report(&output, test.err); code != test.wantCode {
				t.Errorf("Report() = %d, want %d", code, test.wantCode)
			}
			if output.String() != test.wantOutput {
				t.Errorf("output = %q, want %q", output.String(), test.wantOutput)
			}
		})
	}
}
