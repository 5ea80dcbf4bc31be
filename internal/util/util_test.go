// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"no truncation", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"zero max", "hello", 0, ""},
		{"tiny max", "hello", 2, "he"},
		{"multibyte safe", "日本語のテキスト", 5, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestSafeSubstring(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		start, end int
		want       string
	}{
		{"normal range", "abcdef", 1, 4, "bcd"},
		{"negative start", "abcdef", -3, 2, "ab"},
		{"end past length", "abcdef", 4, 100, "ef"},
		{"start past length", "abcdef", 10, 12, ""},
		{"inverted range", "abcdef", 4, 2, ""},
		{"multibyte", "日本語テキスト", 2, 4, "語テ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeSubstring(tt.in, tt.start, tt.end); got != tt.want {
				t.Errorf("SafeSubstring(%q, %d, %d) = %q, want %q", tt.in, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("日本語"); got != 3 {
		t.Errorf("RuneLen = %d, want 3", got)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("content = %q, want %q", data, "first")
	}

	// Overwrite replaces the whole file.
	if err := AtomicWriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content after overwrite = %q, want %q", data, "second")
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if e.Name() != "out.txt" {
			t.Errorf("leftover file %q in target directory", e.Name())
		}
	}
}
