package types

import "errors"

// Remote outcome errors. Any other non-nil error from a Service is transient.
var (
	ErrFatalRequest    = errors.New("request rejected as malformed")
	ErrPermitDenied    = errors.New("license invalid or exhausted")
	ErrNotFound        = errors.New("nothing found")
	ErrTooManyLicenses = errors.New("too many active licenses")
)

// Validation errors.
var (
	ErrInvalidArea     = errors.New("invalid area")
	ErrDepthOutOfRange = errors.New("depth out of range")
)

// Transient reports whether err is a non-nil error that is none of the typed
// remote outcomes: a transport failure or an unexpected status worth retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	for _, typed := range []error{ErrFatalRequest, ErrPermitDenied, ErrNotFound, ErrTooManyLicenses} {
		if errors.Is(err, typed) {
			return false
		}
	}
	return true
}
