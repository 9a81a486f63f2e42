package llm

import "strings"

// StripThinkingTags removes <think>...</think> blocks from model output.
// Reasoning models wrap their scratchpad in these tags; the judge only
// wants the verdict that follows.
func StripThinkingTags(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s, "</think>")
		if end == -1 {
			s = strings.TrimSpace(s[:start])
			break
		}
		s = s[:start] + s[end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// ExtractJSONObject returns the first {...} block in s, tolerating prose
// and markdown fences around it. Returns "" when no object is found.
func ExtractJSONObject(s string) string {
	s = StripThinkingTags(s)
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
