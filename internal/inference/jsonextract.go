package inference

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when no JSON object can be recovered from a
// model response.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// ExtractJSONObject recovers the first JSON object from model output. Models
// sometimes wrap JSON in prose or Markdown fences; this scans for the first
// balanced {...} substring and decodes it.
func ExtractJSONObject(text string) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoJSONObject
	}

	// Fast path: the whole response is the object.
	var direct map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
		return direct, nil
	}

	// Strip a single Markdown fence if the response is wrapped in one.
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			return ExtractJSONObject(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	candidate, ok := firstBalancedObject(trimmed)
	if !ok {
		return nil, ErrNoJSONObject
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, ErrNoJSONObject
	}
	return obj, nil
}

// firstBalancedObject scans for the first balanced top-level {...} span,
// honoring string literals and escapes.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeString decodes a raw JSON value into a string, rejecting non-strings.
func DecodeString(raw json.RawMessage) (string, bool) {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// DecodeStringList decodes a raw JSON value into a []string, rejecting lists
// with non-string members.
func DecodeStringList(raw json.RawMessage) ([]string, bool) {
	var out []string
	if raw == nil || json.Unmarshal(raw, &out) != nil {
		return nil, false
	}
	return out, true
}
