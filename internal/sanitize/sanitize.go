// Package sanitize provides case-name sanitization.
//
// Case names double as vector-store collection names and on-disk directory
// names under the memory root, so they must match: ^[A-Za-z0-9_-]{1,64}$
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxCaseNameLength is the maximum length for a case name.
	// Collection names in the vector store are limited to 64 characters.
	MaxCaseNameLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated
	// names. Format: _<8-char-hash> = 9 characters total.
	HashSuffixLength = 9

	// DefaultCaseName is used when sanitization produces an empty result.
	DefaultCaseName = "new_case"
)

// CaseName sanitizes free-text input into a valid case name.
//
// Rules applied:
//   - Trims surrounding whitespace
//   - Replaces inner spaces with underscores
//   - Strips every rune outside [A-Za-z0-9_-]
//   - Trims leading/trailing underscores and hyphens
//   - Truncates to MaxCaseNameLength with a hash suffix if too long
//   - Returns DefaultCaseName if the result would be empty
//
// Examples:
//
//	"Silva v. Norton" -> "Silva_v_Norton"
//	"  acme / 2023  " -> "acme__2023"
//	"" or "!!!"       -> "new_case"
func CaseName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCaseName
	}

	s = strings.ReplaceAll(s, " ", "_")

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		}
	}

	sanitized := strings.Trim(result.String(), "_-")
	if sanitized == "" {
		return DefaultCaseName
	}

	if len(sanitized) > MaxCaseNameLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// Valid reports whether s is already a sanitized case name.
func Valid(s string) bool {
	return s != "" && s == CaseName(s) && len(s) <= MaxCaseNameLength
}

// truncateWithHash truncates a name to fit within MaxCaseNameLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	maxBase := MaxCaseNameLength - HashSuffixLength
	truncated := strings.TrimRight(s[:maxBase], "_-")

	return truncated + hashSuffix
}
