// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// renderTable lays out rows under a header, padding cells by display
// width so CJK and other wide characters line up.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := runewidth.StringWidth(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			if i < len(widths)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	separators := make([]string, len(headers))
	for i := range headers {
		separators[i] = strings.Repeat("-", widths[i])
	}
	writeRow(separators)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// ellipsize truncates a cell to a display width, appending "..." when
// something was cut.
func ellipsize(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
