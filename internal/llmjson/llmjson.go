// Package llmjson decodes JSON out of LLM chat responses, which routinely
// arrive wrapped in code fences or surrounded by prose.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a wrapping Markdown code fence (``` or ```json) from the
// response. Input without a fence is returned trimmed but otherwise unchanged.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json", "JSON", ...) on the fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractObject returns the substring spanning the first '{' through the last
// '}' of raw. This is the single recovery step applied after strict parsing
// and fence stripping both fail.
func ExtractObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// Unmarshal decodes raw into v. It tries strict JSON first, then the
// fence-stripped form, then one brace-scan recovery.
func Unmarshal(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	stripped := StripFences(raw)
	if err := json.Unmarshal([]byte(stripped), v); err == nil {
		return nil
	}
	obj, ok := ExtractObject(stripped)
	if !ok {
		return fmt.Errorf("no JSON object found in LLM output")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode recovered JSON object: %w", err)
	}
	return nil
}
