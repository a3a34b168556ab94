package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/jrsteele09/budget-session/internal/errors"
)

// maxErrorBody caps how much of an error response is read into a StatusError.
const maxErrorBody = 4096

// StatusError is returned for API responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Code       string // "error" field of the API's JSON error body, when present
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets callers match a StatusError against the sentinel taxonomy.
func (e *StatusError) Is(target error) bool {
	switch target {
	case apperrors.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case apperrors.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// newStatusError drains and closes resp.Body.
func newStatusError(req *http.Request, resp *http.Response) *StatusError {
	defer resp.Body.Close()

	se := &StatusError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		Path:       req.URL.Path,
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(raw, &body) == nil {
		se.Code = body.Error
		se.Message = body.Message
		if se.Message == "" {
			se.Message = body.Description
		}
	}
	return se
}
