// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ui renders plain-text views shared by the chat front-end and the CLI.
package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const AppName = "lazynode"

// cellPad pads a string with spaces so its display width is at least `width` cells.
// Wide runes (CJK, emoji) count as two cells, so panel domains in any script stay aligned.
func cellPad(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// Table lays rows out in columns separated by two spaces. Trailing padding is trimmed.
func Table(rows [][]string) string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cellPad(cell, widths[i]))
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return strings.Join(lines, "\n")
}

// TruncateLeft keeps the last max display cells of s, marking the cut with an ellipsis.
func TruncateLeft(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	r := []rune(s)
	w := 0
	i := len(r)
	for i > 0 && w+runewidth.RuneWidth(r[i-1]) <= max-1 {
		w += runewidth.RuneWidth(r[i-1])
		i--
	}
	return "…" + string(r[i:])
}
