package remote

import (
	"fmt"
	"net/http"

	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// StatusError is a non-200 response. It unwraps to the types sentinel that
// matches its status, so callers test it with errors.Is.
type StatusError struct {
	Op     stats.Op
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// Unwrap maps the status onto the typed outcome errors. Statuses with no
// typed meaning unwrap to nil and are therefore transient.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnprocessableEntity:
		return types.ErrFatalRequest
	case http.StatusForbidden:
		return types.ErrPermitDenied
	case http.StatusNotFound:
		if e.Op == stats.OpDig {
			return types.ErrNotFound
		}
	case http.StatusConflict:
		if e.Op == stats.OpLicensePaid || e.Op == stats.OpLicenseFree {
			return types.ErrTooManyLicenses
		}
	}
	return nil
}
