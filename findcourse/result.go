package findcourse

import (
	"fmt"

	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
)

// ErrorKind classifies a failed call once, at the API boundary.
type ErrorKind int

const (
	KindNone         ErrorKind = iota
	KindTransport              // No response: DNS, timeout, refused, rate limit wait cancelled
	KindUnauthorized           // 401 and 403
	KindValidation             // 400, 409, 422 and other client errors
	KindNotFound               // 404
	KindDecode                 // Response body did not have the expected shape
	KindServer                 // 5xx
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDecode:
		return "decode"
	case KindServer:
		return "server"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the parsed outcome of one API call. Data is only meaningful when OK.
type Result[T any] struct {
	OK      bool
	Data    T
	Kind    ErrorKind
	Status  int    // HTTP status, 0 when no response arrived
	Message string // Server or transport message suitable for display
}

func success[T any](data T, status int) Result[T] {
	return Result[T]{OK: true, Data: data, Status: status}
}

func failure[T any](kind ErrorKind, status int, message string) Result[T] {
	return Result[T]{Kind: kind, Status: status, Message: message}
}

// Err maps a failed result to the matching sentinel error; nil when OK.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	var sentinel error
	switch r.Kind {
	case KindTransport:
		sentinel = apperrors.ErrTransport
	case KindUnauthorized:
		sentinel = apperrors.ErrUnauthorized
	case KindValidation:
		sentinel = apperrors.ErrValidation
	case KindNotFound:
		sentinel = apperrors.ErrNotFound
	case KindDecode:
		sentinel = apperrors.ErrDecode
	case KindServer:
		sentinel = apperrors.ErrServer
	default:
		sentinel = apperrors.ErrInternal
	}
	if r.Message == "" {
		return sentinel
	}
	return fmt.Errorf("%s: %w", r.Message, sentinel)
}

// kindForStatus classifies a non-2xx status.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindUnauthorized
	case status == 404:
		return KindNotFound
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	}
	return KindDecode
}
