package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the analysis backend.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Detail)
}

// The backend reports a missing in-memory document either as a 404 or as a
// 500 whose detail carries this phrase.
const documentNotFoundPhrase = "document not found"

// IsNotFound reports whether err means the referenced document ids are no
// longer known to the backend.
func IsNotFound(err error) bool {
	apiErr := AsError(err)
	if apiErr == nil {
		return false
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Detail), documentNotFoundPhrase)
}

func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// Detail returns the server-provided message carried by err, or fallback
// when err did not come from the backend.
func Detail(err error, fallback string) string {
	if apiErr := AsError(err); apiErr != nil && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if detail := detailText(payload.Detail); detail != "" {
			return &Error{StatusCode: resp.StatusCode, Detail: detail}
		}
		if payload.Error != "" {
			return &Error{StatusCode: resp.StatusCode, Detail: payload.Error}
		}
	}
	return &Error{StatusCode: resp.StatusCode, Detail: resp.Status}
}

// detailText flattens the detail field, which is a string for application
// errors and a list of {msg} objects for request validation errors.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
