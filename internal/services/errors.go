package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Failure kinds. Every error returned by Client is an *Error whose Kind is
// one of these, so callers can branch with errors.Is.
var (
	ErrTransport         = errors.New("transport error")
	ErrRemote            = errors.New("remote error")
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrMalformedResponse = errors.New("malformed response")
)

type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the failure kind. Validation and not-found failures are also
// remote errors: the server answered with a non-2xx status.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return target == ErrRemote && (e.Kind == ErrValidation || e.Kind == ErrNotFound)
}

func transportError(op string, err error) *Error {
	return &Error{
		Kind:    ErrTransport,
		Op:      op,
		Message: fmt.Sprintf("%s: request failed: %v", op, err),
		Err:     err,
	}
}

// requestError reports a request that could not be built. It never reached
// the server, so it is classed with transport failures.
func requestError(op string, err error) *Error {
	return &Error{
		Kind:    ErrTransport,
		Op:      op,
		Message: fmt.Sprintf("%s: %v", op, err),
		Err:     err,
	}
}

func malformedError(op string, status int, err error) *Error {
	msg := fmt.Sprintf("%s: unexpected response format from server", op)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{
		Kind:       ErrMalformedResponse,
		Op:         op,
		StatusCode: status,
		Message:    msg,
		Err:        err,
	}
}

// decodeErrorBody turns a non-2xx response into an *Error. The body is tried
// as a validation-errors map, a JSON string, an object with a message field,
// then raw text, and finally falls back to the status code.
func decodeErrorBody(op string, status int, body []byte) *Error {
	kind := ErrRemote
	if status == http.StatusNotFound {
		kind = ErrNotFound
	}

	e := &Error{Kind: kind, Op: op, StatusCode: status}
	text := strings.TrimSpace(string(body))

	var parsed any
	if text != "" && json.Unmarshal(body, &parsed) == nil {
		switch v := parsed.(type) {
		case map[string]any:
			if msgs := validationMessages(v); len(msgs) > 0 {
				e.Kind = ErrValidation
				e.Message = "Validation errors: " + strings.Join(msgs, ", ")
				return e
			}
			for _, key := range []string{"message", "title", "error"} {
				if s, ok := lookupString(v, key); ok {
					e.Message = s
					return e
				}
			}
		case string:
			if strings.TrimSpace(v) != "" {
				e.Message = v
				return e
			}
		}
	}

	if text != "" {
		e.Message = text
		return e
	}
	e.Message = fmt.Sprintf("HTTP status %d", status)
	return e
}

// validationMessages flattens an "errors" map of field -> message(s). Fields
// are visited in sorted order so the combined message is stable.
func validationMessages(body map[string]any) []string {
	raw, ok := lookupKey(body, "errors")
	if !ok {
		return nil
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			msgs = append(msgs, v)
		case []any:
			for _, m := range v {
				if s, ok := m.(string); ok {
					msgs = append(msgs, s)
				}
			}
		}
	}
	return msgs
}

// lookupKey finds key in m ignoring case, preferring an exact match.
func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func lookupString(m map[string]any, key string) (string, bool) {
	v, ok := lookupKey(m, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
