package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tuleapsync/internal/codec"
)

var (
	// ErrUnauthorized matches a ServerError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound matches a ServerError with status 404.
	ErrNotFound = errors.New("not found")
)

// ServerError is a non-2xx answer. Parsed tells whether the body was the
// Tuleap error envelope.
type ServerError struct {
	Method      string
	URL         string
	Status      int
	Code        int
	Message     string
	DebugSource string
	Body        string
	Parsed      bool
}

func (e *ServerError) Error() string {
	if !e.Parsed {
		return fmt.Sprintf("%d/%s", e.Status, e.Body)
	}
	msg := fmt.Sprintf("error returned by the server for %s %s: %d %s", e.Method, e.URL, e.Code, e.Message)
	if e.DebugSource != "" {
		msg += " (source: " + e.DebugSource + ")"
	}
	return msg
}

func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	default:
		return false
	}
}

func newServerError(req Request, resp Response) *ServerError {
	e := &ServerError{
		Method: req.Method,
		URL:    req.URL(""),
		Status: resp.Status,
		Body:   string(resp.Body),
	}
	if env, ok := codec.ParseError(resp.Body); ok {
		e.Parsed = true
		e.Code = env.Error.Code
		e.Message = env.Error.Message
		if env.Debug != nil {
			e.DebugSource = env.Debug.Source
		}
	}
	return e
}

// CanceledError reports an operation stopped because its context ended.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string { return "operation canceled: " + e.Err.Error() }
func (e *CanceledError) Unwrap() error { return e.Err }

func checkCanceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &CanceledError{Err: err}
	}
	return nil
}
