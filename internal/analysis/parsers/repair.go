package parsers

import (
	"encoding/json"
	"strings"
)

const (
	fence = "```"

	maxRepairAttempts = 64
)

// repairJSON strips Markdown code fences and any prose around the outermost
// JSON object or array. It returns the input unchanged when nothing looks
// like JSON.
func repairJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if start := strings.Index(s, fence); start >= 0 {
		body := s[start+len(fence):]
		if end := strings.Index(body, fence); end >= 0 {
			body = body[:end]
		}
		// drop the language tag line, e.g. "json"
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			tag := strings.TrimSpace(body[:nl])
			if tag == "" || isLanguageTag(tag) {
				body = body[nl+1:]
			}
		}
		s = strings.TrimSpace(body)
	}

	return strings.TrimSpace(outermost(s))
}

// outermost returns the first complete JSON value in s that can carry an
// analysis: an object, or an array of objects. Each candidate opener is
// decoded as one value, so braces or brackets in the surrounding prose do not
// widen the span. Any decodable array is the fallback.
func outermost(s string) string {
	offset := 0
	for attempt := 0; attempt < maxRepairAttempts; attempt++ {
		i := strings.IndexAny(s[offset:], "{[")
		if i < 0 {
			break
		}
		start := offset + i
		if v, ok := valueAt(s, start); ok && (s[start] == '{' || holdsObjects(v)) {
			return v
		}
		offset = start + 1
	}

	offset = 0
	for attempt := 0; attempt < maxRepairAttempts; attempt++ {
		i := strings.IndexByte(s[offset:], '[')
		if i < 0 {
			break
		}
		start := offset + i
		if v, ok := valueAt(s, start); ok {
			return v
		}
		offset = start + 1
	}
	return s
}

// valueAt decodes the single JSON value starting at s[start], ignoring
// whatever follows it.
func valueAt(s string, start int) (string, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&raw); err != nil {
		return "", false
	}
	return string(raw), true
}

func holdsObjects(array string) bool {
	rest := strings.TrimSpace(strings.TrimPrefix(array, "["))
	return strings.HasPrefix(rest, "{")
}

func isLanguageTag(s string) bool {
	if len(s) > 16 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return false
		}
	}
	return true
}
