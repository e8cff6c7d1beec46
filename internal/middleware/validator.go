package middleware

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-intel/internal/config"
)

// ValidateRunID checks that id is a UUID as generated by the pipeline.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid run ID format")
	}
	return nil
}

// ValidateSinks accepts an empty list (use configured sinks). Every named
// sink must be known and present in enabled.
func ValidateSinks(sinks, enabled []string) error {
	if err := config.ValidateSinks(sinks); err != nil {
		return err
	}
	for _, s := range sinks {
		ok := false
		for _, e := range enabled {
			if strings.EqualFold(s, e) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("sink not configured: %s", s)
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

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

// ValidateDays validates the lookback window in days; 0 means the default.
func ValidateDays(days int) error {
	if days < 0 {
		return fmt.Errorf("days must not be negative")
	}
	if days > 90 {
		return fmt.Errorf("days must be at most 90")
	}
	return nil
}
