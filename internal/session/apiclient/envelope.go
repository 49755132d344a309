package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	dErrors "consoleauth/pkg/domain-errors"
	"consoleauth/pkg/platform/sentinel"
)

// envelope is the backend's response wrapper:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": "...", "message": "...", "details": {...}}}
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error is a backend-reported failure. It is always returned wrapped in a
// domain error, so callers can use either errors.As or dErrors.HasCode.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// DomainCode maps the HTTP status to a domain error code.
func (e *Error) DomainCode() dErrors.Code {
	switch {
	case e.Status == http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case e.Status == http.StatusForbidden:
		return dErrors.CodeForbidden
	case e.Status == http.StatusNotFound:
		return dErrors.CodeNotFound
	case e.Status == http.StatusConflict:
		return dErrors.CodeConflict
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return dErrors.CodeBadRequest
	default:
		return dErrors.CodeInternal
	}
}

func (e *Error) wrap() error {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return dErrors.Wrap(e, e.DomainCode(), msg)
}

func decodeResponse(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*16))
	if err != nil {
		return dErrors.Wrap(fmt.Errorf("%w: read body: %v", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "backend response interrupted")
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		} else if len(raw) > 0 && len(raw) <= maxErrorBody {
			apiErr.Message = string(raw)
		}
		return apiErr.wrap()
	}

	if decodeErr != nil {
		if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
			return nil
		}
		return dErrors.Wrap(fmt.Errorf("%w: %v", sentinel.ErrMalformed, decodeErr), dErrors.CodeInternal, "malformed backend response")
	}
	if !env.Success {
		apiErr := &Error{Status: resp.StatusCode, Message: "request was not successful"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return dErrors.Wrap(apiErr, dErrors.CodeBadRequest, apiErr.Message)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return dErrors.Wrap(fmt.Errorf("%w: %v", sentinel.ErrMalformed, err), dErrors.CodeInternal, "malformed backend response")
	}
	return nil
}
