// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

// Rune-aware string helpers. Counting runes instead of bytes prevents
// mid-character truncation that would corrupt UTF-8 strings.

// TruncateRunes truncates a string to a maximum number of runes.
// If the string is truncated, "..." is appended.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// SafeSubstring returns a substring using rune indices, clamping
// out-of-range bounds instead of panicking.
func SafeSubstring(s string, start, end int) string {
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if start > len(runes) {
		return ""
	}
	if end < 0 || end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

// RuneLen returns the number of runes in a string.
func RuneLen(s string) int {
	return len([]rune(s))
}
