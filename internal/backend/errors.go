package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies a backend failure.
type Kind string

const (
	// KindUpstream means the API answered with an error status.
	KindUpstream Kind = "upstream"
	// KindUnreachable means the connection was refused.
	KindUnreachable Kind = "unreachable"
	// KindTimeout means no response arrived within the request timeout.
	KindTimeout Kind = "timeout"
	// KindTransport covers every other network failure.
	KindTransport Kind = "transport"
	// KindDecode means the response body had an unexpected shape.
	KindDecode Kind = "decode"
)

// Error is the uniform error returned by every Client method.
type Error struct {
	Op         string   // client operation, e.g. "search customers"
	Kind       Kind     // failure class
	StatusCode int      // HTTP status for KindUpstream, else 0
	Message    string   // human-readable message
	Details    []string // validation messages, when the API sent a list
	Err        error    // underlying cause, if any
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend: %s: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsValidation reports whether the API rejected the request with a list of
// validation messages.
func (e *Error) IsValidation() bool {
	return e.Kind == KindUpstream && len(e.Details) > 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindUpstream && apiErr.StatusCode == http.StatusNotFound
}

// transportError classifies a failure to obtain a response.
func transportError(ctx context.Context, op string, err error) *Error {
	e := &Error{Op: op, Err: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.Kind = KindTimeout
		e.Message = "request timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
		e.Message = "request timed out"
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Kind = KindUnreachable
		e.Message = "connection refused"
	default:
		e.Kind = KindTransport
		e.Message = err.Error()
	}
	return e
}

// upstreamError extracts a message from an error response body. The API
// reports errors as {"detail": "..."}, {"detail": [{"msg": "..."}]},
// {"message": "..."} or {"error": "..."}.
func upstreamError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Kind: KindUpstream, StatusCode: status}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg, details := parseDetail(payload.Detail); msg != "" {
			e.Message = msg
			e.Details = details
			return e
		}
		if payload.Message != "" {
			e.Message = payload.Message
			return e
		}
		if payload.Error != "" {
			e.Message = payload.Error
			return e
		}
	}

	e.Message = http.StatusText(status)
	if e.Message == "" {
		e.Message = "unexpected status"
	}
	return e
}

// parseDetail decodes a FastAPI-style "detail" member.
func parseDetail(raw json.RawMessage) (string, []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var items []struct {
		Msg string        `json:"msg"`
		Loc []interface{} `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, ", "), msgs
		}
	}
	return "", nil
}
