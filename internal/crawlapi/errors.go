package crawlapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned (wrapped) for any 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// Kind classifies an error for presentation.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindValidation
	KindServer
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// TransportError reports a request that never produced a response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("execute request %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports input rejected before any request was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Classify maps err onto the error taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindAuth
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return KindServer
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		return KindTransport
	}
	return KindUnknown
}

// Message returns the human-readable part of err suitable for a status line.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthorized) {
		return "session expired"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	if Classify(err) == KindTransport {
		return "server unreachable"
	}
	return err.Error()
}
