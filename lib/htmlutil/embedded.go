package htmlutil

import (
	"errors"
	"strings"
)

var (
	ErrMarkerNotFound  = errors.New("marker not found")
	ErrObjectNotFound  = errors.New("no object follows marker")
	ErrUnbalancedBrace = errors.New("unbalanced braces")
)

// ExtractJSONObject finds `marker` in `page` and returns the text of the
// first balanced {...} object following it. Braces inside JSON string
// literals (including escaped quotes) do not count towards the balance.
func ExtractJSONObject(page, marker string) (string, error) {
	idx := strings.Index(page, marker)
	if idx < 0 {
		return "", ErrMarkerNotFound
	}
	rest := page[idx+len(marker):]

	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return "", ErrObjectNotFound
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		c := rest[i]
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
				return rest[start : i+1], nil
			}
		}
	}

	return "", ErrUnbalancedBrace
}
