package backend

import (
	"bytes"
	"encoding/json"
	"strings"
)

// resultKeys are the members that carry the payload of a text-ish response,
// in order of preference.
var resultKeys = []string{"data", "result", "output", "message", "response"}

// ResultText flattens an arbitrary JSON result into display text. Strings
// are returned as-is, arrays are joined line by line, objects holding one of
// resultKeys (or a single member) are unwrapped, and any other object is
// rendered as "key: value" lines in document order.
func ResultText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return string(trimmed)
		}
		return s
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return string(trimmed)
		}
		lines := make([]string, 0, len(items))
		for _, it := range items {
			lines = append(lines, ResultText(it))
		}
		return strings.Join(lines, "\n")
	case '{':
		entries, ok := objectEntries(trimmed)
		if !ok {
			return string(trimmed)
		}
		for _, key := range resultKeys {
			for _, e := range entries {
				if e.key == key {
					return ResultText(e.value)
				}
			}
		}
		if len(entries) == 1 {
			return ResultText(entries[0].value)
		}
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			v := ResultText(e.value)
			if strings.Contains(v, "\n") {
				lines = append(lines, e.key+":\n"+v)
			} else {
				lines = append(lines, e.key+": "+v)
			}
		}
		return strings.Join(lines, "\n")
	default:
		return string(trimmed)
	}
}

type objectEntry struct {
	key   string
	value json.RawMessage
}

// objectEntries decodes a JSON object preserving member order.
func objectEntries(raw []byte) ([]objectEntry, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	var entries []objectEntry
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := kt.(string)
		if !ok {
			return nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		entries = append(entries, objectEntry{key: key, value: v})
	}
	return entries, true
}
