package packs

import (
	"errors"
	"fmt"
	"net/http"
)

// Validation failures surface as typed errors so handlers and callers can
// branch with errors.Is; nothing is swallowed.
var (
	// ErrNotFound covers a missing pack, user, or membership.
	ErrNotFound = errors.New("not found")
	// ErrForbidden covers role checks and private packs joined without a
	// valid invite code.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState marks an operation that is illegal for the pack's
	// current status, such as starting a finished pack.
	ErrInvalidState = errors.New("invalid pack state")
	// ErrFull is returned when the pack is at capacity.
	ErrFull = errors.New("pack is full")
	// ErrAlreadyMember is returned on a join by an already-active member.
	ErrAlreadyMember = errors.New("already an active member")
	// ErrNotMember is returned when the caller has no active membership.
	ErrNotMember = errors.New("no active membership")
	// ErrInvalidArgument covers out-of-range coordinates, bad capacity
	// values, and unknown enum values.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidOperation marks a role change that would leave the pack
	// with zero leaders.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrUnavailable wraps persistence failures. Callers may retry reads;
	// join/leave writes must not be retried to avoid double-counting.
	ErrUnavailable = errors.New("storage unavailable")
)

// storeErr tags an unexpected persistence error as Unavailable while keeping
// the underlying cause in the chain.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotMember):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrFull),
		errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
