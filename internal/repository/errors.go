// Package repository defines error types that are reused across multiple
// repositories and the services built on them. These sentinel values allow
// higher layers such as handlers to distinguish between different failure
// scenarios and map them onto HTTP status codes.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot proceed because of
// conflicting state, such as a duplicate barrack character.
var ErrConflict = errors.New("conflict")

// ErrInactiveUser is returned when an unverified or suspended user tries
// to create sessions, reservations, bids or reports.
var ErrInactiveUser = errors.New("user is not verified or is suspended")

// Queue admission and advancement.
var (
	ErrSessionNotOpen           = errors.New("session is not open")
	ErrDuplicateCharacter       = errors.New("duplicate character in request")
	ErrCharacterAlreadyReserved = errors.New("character already reserved in this session")
	ErrCharacterNotInBarrack    = errors.New("character is not in the caller's barrack")
	ErrReservationNotCalled     = errors.New("reservation is not currently called")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrSessionNotCompleted      = errors.New("session is not completed")
)

// ErrTransactionConflict signals that a concurrent writer won a race.  The
// request may be retried unchanged.
var ErrTransactionConflict = errors.New("transaction conflict, retry")

// Bid ledger.
var (
	ErrNotAuction         = errors.New("session does not accept bids")
	ErrBidExists          = errors.New("bid already placed for this session")
	ErrBidAlreadyAccepted = errors.New("another bid has already been accepted")
)

// ErrAlreadyResolved is returned when a report has already been closed.
var ErrAlreadyResolved = errors.New("report already resolved")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// Retryable reports whether err may succeed when the same request is
// issued again.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}
