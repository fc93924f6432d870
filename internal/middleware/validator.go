package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateTrack checks the analysis track name.
func ValidateTrack(track string) error {
	switch strings.ToLower(track) {
	case "security", "compliance":
		return nil
	}
	return fmt.Errorf("invalid track: %s (allowed: security, compliance)", track)
}

// ValidateLanguage checks the document language against the parsers the
// daemon ships with.
func ValidateLanguage(language string) error {
	allowed := map[string]bool{
		"go":         true,
		"golang":     true,
		"python":     true,
		"javascript": true,
		"js":         true,
	}

	if !allowed[strings.ToLower(language)] {
		return fmt.Errorf("unsupported language: %s (allowed: go, python, javascript)", language)
	}
	return nil
}

// ValidateURI validates the document URI the editor reports.
func ValidateURI(rawURI string) error {
	if rawURI == "" {
		return fmt.Errorf("document URI cannot be empty")
	}

	u, err := url.Parse(rawURI)
	if err != nil {
		return fmt.Errorf("invalid URI format: %w", err)
	}

	// Editors send file: or untitled: buffers; anything network-backed is
	// out of scope for a local daemon.
	if u.Scheme != "" && u.Scheme != "file" && u.Scheme != "untitled" {
		return fmt.Errorf("invalid URI scheme: %s (allowed: file, untitled)", u.Scheme)
	}

	return nil
}

// ValidateModel validates the requested model name format.
func ValidateModel(model string) error {
	if model == "" {
		return nil // Optional field, config default applies
	}

	pattern := `^[a-zA-Z0-9._:-]{1,64}$`
	matched, _ := regexp.MatchString(pattern, model)
	if !matched {
		return fmt.Errorf("invalid model name format")
	}

	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
