package llm

import (
	"bytes"
	"encoding/json"
)

// ExtractJSON finds the first complete JSON object in model output that may
// be wrapped in markdown fences or prose.
func ExtractJSON(out []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(out)
	if json.Valid(trimmed) && len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed, true
	}

	for start := bytes.IndexByte(trimmed, '{'); start >= 0; {
		if end, ok := matchObject(trimmed[start:]); ok {
			candidate := trimmed[start : start+end+1]
			if json.Valid(candidate) {
				return candidate, true
			}
		}
		next := bytes.IndexByte(trimmed[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchObject returns the index of the brace closing the object that
// starts at data[0], skipping braces inside strings.
func matchObject(data []byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i, c := range data {
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
