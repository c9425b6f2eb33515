// Package apierror models the error document returned by the ArangoDB HTTP
// API for non-2xx responses.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// maxBody bounds how much of an error body is kept as a fallback message.
	maxBody = 4 << 10
	// maxRead bounds how much of an error body is read at all.
	maxRead = 64 << 10
)

// APIError is a structured failure returned by the server.
//
// ArangoDB reports errors as {"error":true,"code":401,"errorNum":401,"errorMessage":"..."}
// where Code mirrors the HTTP status and ErrorNum is the server's own error number.
type APIError struct {
	IsError      bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.ErrorNum != 0 && e.ErrorNum != e.Code {
		return fmt.Sprintf("arangodb returned %d (errorNum %d): %s", e.Code, e.ErrorNum, e.ErrorMessage)
	}
	return fmt.Sprintf("arangodb returned %d: %s", e.Code, e.ErrorMessage)
}

// Parse builds an APIError from a status code and response body. When the
// body is not an ArangoDB error document the status becomes the code and the
// trimmed body becomes the message.
func Parse(status int, body []byte) *APIError {
	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && (e.IsError || e.Code != 0 || e.ErrorMessage != "") {
		if e.Code == 0 {
			e.Code = status
		}
		return &e
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxBody {
		msg = msg[:maxBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{
		IsError:      true,
		Code:         status,
		ErrorMessage: msg,
	}
}

// FromBody reads at most 64 KiB of r and parses it with Parse. The caller
// drains whatever is left. A read failure still yields an APIError carrying
// the status.
func FromBody(status int, r io.Reader) *APIError {
	body, err := io.ReadAll(io.LimitReader(r, maxRead))
	if err != nil && len(body) == 0 {
		return &APIError{
			IsError:      true,
			Code:         status,
			ErrorMessage: fmt.Sprintf("%s (read body: %v)", http.StatusText(status), err),
		}
	}
	return Parse(status, body)
}

// As returns the APIError in err's chain, if any.
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnauthorized returns true if err is a 401 API error.
func IsUnauthorized(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == http.StatusUnauthorized
}

// IsForbidden returns true if err is a 403 API error.
func IsForbidden(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == http.StatusForbidden
}

// IsNotFound returns true if err is a 404 API error.
func IsNotFound(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == http.StatusNotFound
}
