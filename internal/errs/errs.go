// internal/errs/errs.go
package errs

import "errors"

// Kinds shared by every bounded context. Packages wrap them with
// fmt.Errorf("...: %w", ...) so handlers can map them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Error is a named domain error that belongs to one of the kinds above.
// Code is a stable machine-readable identifier for API payloads.
type Error struct {
	Code string
	kind error
	msg  string
}

// Define declares a domain error of the given kind.
func Define(kind error, code, msg string) *Error {
	return &Error{Code: code, kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind, so errors.Is(err, ErrConflict) holds for every
// conflict-type domain error.
func (e *Error) Unwrap() error { return e.kind }

// Code returns the code of the first domain error in err's chain, or a
// code derived from its kind.
func Code(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "internal"
}
