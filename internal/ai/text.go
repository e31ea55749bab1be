package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// StripThinking removes <think>...</think> reasoning blocks some models emit
// before their answer. An unterminated block drops everything after it.
func StripThinking(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	if i := strings.Index(s, "<think>"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ExtractJSON returns the JSON object in a model reply: the content of the
// first fenced block if present, otherwise the outermost {...} span.
func ExtractJSON(s string) (string, error) {
	s = StripThinking(s)
	if m := fencedJSON.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in reply")
	}
	return s[start : end+1], nil
}

// DecodeJSON extracts and decodes the JSON object in a model reply.
func DecodeJSON(s string, v any) error {
	raw, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
