package gemini

import "errors"

// ErrNoJSON is returned when a model reply contains no balanced JSON object.
var ErrNoJSON = errors.New("gemini: no JSON object in model reply")

// ExtractJSON returns the first balanced {...} region of s. Model replies
// routinely wrap the object in prose or fenced code blocks; everything
// outside the braces is ignored. Brace counting respects JSON string
// literals and escapes, so braces inside critique text do not unbalance the
// scan. A reply whose object never closes is malformed.
func ExtractJSON(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", ErrNoJSON
}
