package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/diagrams", "flow.mmd", false},
		{"/data/diagrams", "team/flow.mmd", false},
		{"/data/diagrams", "../etc/passwd", true},
		{"/data/diagrams", "abc/../def.txt", true},
		{"/data/diagrams", "/abs/escape.txt", false},
		{"/data/diagrams", "", true},
		{"/data/diagrams", "/", true},
	}
	for _, tt := range tests {
		got, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
		if err == nil && !strings.HasPrefix(got, "/data/diagrams/") {
			t.Errorf("SafePath(%q, %q) = %q escapes base", tt.base, tt.input, got)
		}
	}
}

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"mermaid-diagram.txt", false},
		{"My Flow v2.mmd", false},
		{"", true},
		{"..", true},
		{"a/b.txt", true},
		{`a\b.txt`, true},
		{"name\x00.txt", true},
		{strings.Repeat("a", 256), true},
	}
	for _, tt := range tests {
		if err := ValidateFileName(tt.name); (err != nil) != tt.wantErr {
			t.Errorf("ValidateFileName(%q) error=%v, wantErr=%v", tt.name, err, tt.wantErr)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}
