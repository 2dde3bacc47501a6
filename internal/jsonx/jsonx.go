// Package jsonx decodes the "nearly JSON" payloads language models return:
// prose around the value, markdown fences, trailing commas, single quotes.
// Every LLM response in the pipeline passes through here before parsing.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractObject returns the first balanced {...} substring of s.
func ExtractObject(s string) (string, error) {
	return extractBalanced(s, '{', '}')
}

// ExtractArray returns the first balanced [...] substring of s.
func ExtractArray(s string) (string, error) {
	return extractBalanced(s, '[', ']')
}

// DecodeObject extracts the first object from a model response, repairs it
// and unmarshals into v.
func DecodeObject(s string, v any) error {
	raw, err := ExtractObject(stripFences(s))
	if err != nil {
		return err
	}
	return decode(raw, v)
}

// DecodeArray extracts the first array from a model response, repairs it and
// unmarshals into v.
func DecodeArray(s string, v any) error {
	raw, err := ExtractArray(stripFences(s))
	if err != nil {
		return err
	}
	return decode(raw, v)
}

func decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to parse repaired json: %w", err)
	}
	return nil
}

// stripFences removes markdown code fences models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// extractBalanced scans for the first open rune and returns the substring up
// to its balancing close, honoring JSON string literals and escapes.
func extractBalanced(s string, open, close byte) (string, error) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", fmt.Errorf("no %q found in response", string(open))
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	// Unterminated value; hand the tail to the repair pass.
	return s[start:], nil
}
