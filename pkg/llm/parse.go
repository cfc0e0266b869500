package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a model answer that could not be decoded into the expected shape.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse llm response: %v (raw: %s)", e.Err, truncate(e.Raw, 200))
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseJSON decodes a model answer into T. Markdown code fences and prose
// around the outermost JSON value are tolerated. Failures are *ParseError.
func ParseJSON[T any](raw string) (T, error) {
	var out T

	body := extractJSON(StripCodeFence(raw))
	if body == "" {
		return out, &ParseError{Raw: raw, Err: errors.New("no json value found")}
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, &ParseError{Raw: raw, Err: err}
	}
	return out, nil
}

// StripCodeFence removes a surrounding ```lang ... ``` block.
func StripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
		raw = raw[3+idx+1:]
	} else {
		raw = raw[3:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

// extractJSON returns the substring from the first '{' or '[' to its last matching closer.
func extractJSON(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
