package ledger

import "errors"

var (
	// ErrDuplicateUsername occurs when registering a username that already exists.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrAuthenticationFailed covers both an unknown username and a wrong
	// password; callers must not be able to tell the two apart.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAccountNotFound is returned by repositories when the username has no
	// account. The service never exposes it past Authenticate.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidCredentialInput rejects registrations with an empty username
	// or password.
	ErrInvalidCredentialInput = errors.New("username and password are required")

	// ErrInvalidAmount rejects deposits and withdrawals of zero or less.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds occurs when a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStoreUnavailable wraps connectivity and timeout faults from the
	// backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
