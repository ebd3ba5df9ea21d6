package ledger

import "errors"

var (
	// ErrInvalidAmount rejects non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidConcept rejects empty concepts.
	ErrInvalidConcept = errors.New("concept must not be empty")

	// ErrInvalidType rejects unknown transaction types.
	ErrInvalidType = errors.New("unknown transaction type")

	// ErrNotFound indicates the row does not exist.
	ErrNotFound = errors.New("transaction not found")

	// ErrNotOwner indicates a cross-tenant access attempt. Callers must
	// surface it exactly like ErrNotFound so existence never leaks.
	ErrNotOwner = errors.New("transaction not owned by caller")

	// ErrNotProvisional rejects a verify on a row that already left the
	// provisional state.
	ErrNotProvisional = errors.New("transaction is not provisional")

	// ErrMissingMerchant rejects a transition to a terminal state while
	// the merchant is unknown.
	ErrMissingMerchant = errors.New("merchant required for verification")

	// ErrUserExists indicates the registration email is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrBadCredentials indicates a failed authentication attempt.
	ErrBadCredentials = errors.New("invalid credentials")
)
