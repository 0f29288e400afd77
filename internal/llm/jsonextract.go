package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparsable is returned when a model reply contains no decodable JSON object.
var ErrUnparsable = errors.New("llm: unparsable model output")

// maxScan bounds how much of a reply the brace matcher will look at.
const maxScan = 256 << 10

// DecodeJSON decodes a model reply into v. It first tries the whole reply,
// then the first balanced {...} block found in it (models like to wrap JSON
// in prose or code fences). Both failing yields ErrUnparsable.
func DecodeJSON(reply string, v any) error {
	trimmed := strings.TrimSpace(reply)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	block, ok := firstObject(trimmed)
	if !ok {
		return fmt.Errorf("%w: no JSON object found", ErrUnparsable)
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return nil
}

// firstObject returns the first balanced top-level {...} block in s.
// Braces inside JSON strings (including escaped quotes) are ignored.
func firstObject(s string) (string, bool) {
	if len(s) > maxScan {
		s = s[:maxScan]
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
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
