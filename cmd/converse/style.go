// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// notices writes status lines (summarized, interrupted) between
// answers. They are faint on a color terminal and plain otherwise.
type notices struct {
	output io.Writer
	style  lipgloss.Style
}

func newNotices(output io.Writer, terminal bool, getenv func(string) string) *notices {
	renderer := lipgloss.NewRenderer(output)
	if !terminal || getenv("NO_COLOR") != "" {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &notices{
		output: output,
		style:  renderer.NewStyle().Faint(true),
	}
}

func (notices *notices) printf(format string, args ...any) {
	fmt.Fprintln(notices.output, notices.style.Render(fmt.Sprintf(format, args...)))
}
