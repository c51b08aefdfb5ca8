package agents

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var errNoJSON = errors.New("agents: no JSON object found in response")

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// extractJSON tolerates both a fenced ```json code block and bare
// JSON-with-surrounding-prose, per spec.md §4.6's parser policy shared by
// agents 1-3 and the polisher. It returns the first syntactically valid JSON object found.
func extractJSON(text string) (json.RawMessage, error) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	if candidate, ok := balancedJSONObject(text); ok {
		return json.RawMessage(candidate), nil
	}

	return nil, errNoJSON
}

// balancedJSONObject scans for the first brace-balanced {...} span (ignoring
// braces inside string literals) and reports whether it decodes as valid
// JSON.
func balancedJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end, ok := matchBrace(text, start); ok {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", false
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i, true
			}
		}
	}
	return 0, false
}

// extractSentinelJSON extracts the JSON payload delimited by literal
// beginTag/endTag sentinel lines (spec.md §4.6's validator-specific contract).
// It returns (nil, false) if both sentinels are not present in order.
func extractSentinelJSON(text, beginTag, endTag string) (json.RawMessage, bool) {
	start := strings.Index(text, beginTag)
	if start < 0 {
		return nil, false
	}
	start += len(beginTag)
	end := strings.Index(text[start:], endTag)
	if end < 0 {
		return nil, false
	}
	candidate := strings.TrimSpace(text[start : start+end])
	if inner, ok := balancedJSONObject(candidate); ok {
		return json.RawMessage(inner), true
	}
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), true
	}
	return nil, false
}
