package app

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// extractJSON returns the outermost JSON value delimited by open/close in a
// model reply, tolerating markdown code fences and surrounding prose.
func extractJSON(text string, open, close byte) ([]byte, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(text[start : end+1]), true
}

// flexNumber accepts a JSON number or a numeric string. Valid is false when
// the field was absent, null or unparseable.
type flexNumber struct {
	Value float64
	Valid bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(leadingNumber(s), 64); err == nil {
			n.Value, n.Valid = v, true
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		n.Value, n.Valid = v, true
	}
	return nil
}

// Or returns the value, or fallback when it is not valid.
func (n flexNumber) Or(fallback float64) float64 {
	if !n.Valid {
		return fallback
	}
	return n.Value
}

// leadingNumber trims s to its leading numeric prefix, so "2 slices" reads as 2.
func leadingNumber(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	return s[:end]
}

// flexString accepts a JSON string and ignores any other type.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err == nil {
		*s = flexString(v)
	}
	return nil
}
