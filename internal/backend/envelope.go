package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NormalizeList accepts a bare JSON array or an object wrapping one under
// "data" or "results" and returns the array elements. null, an empty body
// and an object carrying neither key all yield an empty list.
func NormalizeList(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("backend: decode list: %w", err)
		}
		return items, nil
	case '{':
		var env struct {
			Data    json.RawMessage `json:"data"`
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("backend: decode envelope: %w", err)
		}
		inner := env.Data
		if isEmptyJSON(inner) {
			inner = env.Results
		}
		if isEmptyJSON(inner) {
			return nil, nil
		}
		inner = bytes.TrimSpace(inner)
		if inner[0] != '[' {
			return nil, fmt.Errorf("backend: envelope does not hold a list")
		}
		var items []json.RawMessage
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, fmt.Errorf("backend: decode list: %w", err)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("backend: expected list, got %q", firstBytes(trimmed, 16))
	}
}

// DecodeList normalizes raw with NormalizeList and decodes every element
// into T.
func DecodeList[T any](raw json.RawMessage) ([]T, error) {
	items, err := NormalizeList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, fmt.Errorf("backend: decode item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeList is DecodeList with failures reported as *Error.
func decodeList[T any](op string, raw json.RawMessage) ([]T, error) {
	out, err := DecodeList[T](raw)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, Message: "unexpected response from server", Err: err}
	}
	return out, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func firstBytes(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
