package sanitize

import (
	"strings"
	"testing"
)

func TestCaseName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already valid",
			input:    "Silva_2023",
			expected: "Silva_2023",
		},
		{
			name:     "case preserved",
			input:    "AcmeCorp",
			expected: "AcmeCorp",
		},
		{
			name:     "spaces to underscores",
			input:    "Silva v Norton",
			expected: "Silva_v_Norton",
		},
		{
			name:     "punctuation stripped",
			input:    "client: acme, 2023!",
			expected: "client_acme_2023",
		},
		{
			name:     "hyphens kept",
			input:    "case-42",
			expected: "case-42",
		},
		{
			name:     "surrounding separators trimmed",
			input:    "__acme--",
			expected: "acme",
		},
		{
			name:     "surrounding whitespace",
			input:    "  acme  ",
			expected: "acme",
		},
		{
			name:     "empty input",
			input:    "",
			expected: DefaultCaseName,
		},
		{
			name:     "only invalid characters",
			input:    "!!!",
			expected: DefaultCaseName,
		},
		{
			name:     "only separators",
			input:    "___",
			expected: DefaultCaseName,
		},
		{
			name:     "unicode stripped",
			input:    "caso Jurídico",
			expected: "caso_Jurdico",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CaseName(tt.input)
			if got != tt.expected {
				t.Errorf("CaseName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCaseNameTruncation(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := CaseName(long)

	if len(got) > MaxCaseNameLength {
		t.Errorf("CaseName length = %d, want <= %d", len(got), MaxCaseNameLength)
	}
	if !strings.HasPrefix(got, strings.Repeat("a", MaxCaseNameLength-HashSuffixLength)) {
		t.Errorf("truncated name should keep the leading characters, got %q", got)
	}

	// Distinct long inputs must not collide after truncation.
	other := CaseName(strings.Repeat("a", 99) + "b")
	if got == other {
		t.Errorf("distinct long inputs collided: %q", got)
	}
}

func TestCaseNameIdempotent(t *testing.T) {
	inputs := []string{"Silva v Norton", "client: acme!", strings.Repeat("x", 200)}
	for _, in := range inputs {
		once := CaseName(in)
		twice := CaseName(once)
		if once != twice {
			t.Errorf("CaseName not idempotent for %q: %q != %q", in, once, twice)
		}
		if !Valid(once) {
			t.Errorf("CaseName(%q) = %q not Valid", in, once)
		}
	}
}
