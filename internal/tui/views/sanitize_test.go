package views

import "testing"

func TestCellText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "timeout", 0, "timeout"},
		{"collapses whitespace", "  remote\n\tsaid   no ", 0, "remote said no"},
		{"drops modifiers", "ok\U0001F44D\U0001F3FB", 0, "ok\U0001F44D"},
		{"truncates", "abcdefghij", 5, "abcd…"},
		{"exact fit", "abcde", 5, "abcde"},
		{"escapes tags", "bad [red]", 0, "bad [red[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cellText(tt.in, tt.max); got != tt.want {
				t.Errorf("cellText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
