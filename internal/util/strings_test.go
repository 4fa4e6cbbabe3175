package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"tiny maxLen returns ellipsis", "hello", 3, "..."},
		{"zero maxLen returns ellipsis", "hello", 0, "..."},
		{"empty string unchanged", "", 10, ""},
		{"unicode counted by rune", "日本語テスト", 5, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateString(tt.input, tt.maxLen)
			if got != tt.expected {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestTruncateANSI(t *testing.T) {
	styled := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	t.Run("short plain string unchanged", func(t *testing.T) {
		if got := TruncateANSI("hello", 10); got != "hello" {
			t.Errorf("expected %q, got %q", "hello", got)
		}
	})

	t.Run("plain string truncated to width", func(t *testing.T) {
		got := TruncateANSI("hello world", 8)
		if got != "hello..." {
			t.Errorf("expected %q, got %q", "hello...", got)
		}
	})

	t.Run("tiny width returns ellipsis", func(t *testing.T) {
		if got := TruncateANSI("hello", 2); got != "..." {
			t.Errorf("expected ellipsis, got %q", got)
		}
	})

	t.Run("styled string keeps its width budget", func(t *testing.T) {
		got := TruncateANSI(styled.Render("hello world"), 8)
		if w := lipgloss.Width(got); w > 8 {
			t.Errorf("result width %d exceeds 8", w)
		}
	})

	t.Run("untruncated styled string is untouched", func(t *testing.T) {
		in := styled.Render("hi")
		if got := TruncateANSI(in, 10); got != in {
			t.Error("styled string was modified")
		}
	})

	t.Run("wide characters counted by visual width", func(t *testing.T) {
		got := TruncateANSI("日本語テスト", 8)
		if w := lipgloss.Width(got); w > 8 {
			t.Errorf("result width %d exceeds 8", w)
		}
	})
}
