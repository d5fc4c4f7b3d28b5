package scrapeutil

import (
	"bytes"
	"strconv"
	"strings"
)

// FlexInt decodes integers that upstreams send either as numbers or as
// strings, anything unparsable decodes to zero.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	text := strings.Trim(string(data), `"`)
	text = strings.TrimSpace(text)
	if text == "" {
		*n = 0
		return nil
	}
	parsed, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = FlexInt(parsed)
	return nil
}

// FlexBool decodes booleans sent as true/false, "true"/"false" or "Y"/"N".
// A missing value keeps its default, see NewFlexBool.
type FlexBool struct {
	Set   bool
	Value bool
}

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	text := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch text {
	case "true", "y", "yes", "1":
		*b = FlexBool{Set: true, Value: true}
	case "false", "n", "no", "0":
		*b = FlexBool{Set: true, Value: false}
	default:
		*b = FlexBool{}
	}
	return nil
}

// Or returns the decoded value, or `fallback` when the field was absent.
func (b FlexBool) Or(fallback bool) bool {
	if !b.Set {
		return fallback
	}
	return b.Value
}
