package ledger

import (
	"time"

	"github.com/ledgerbook/ledgerbook/internal/money"
)

// Account represents a registered user and their balance. Username is the
// unique lookup key and never changes after creation.
type Account struct {
	ID             string
	Username       string
	CredentialHash []byte
	Balance        money.Amount
	CreatedAt      time.Time
}

// Credentials is the username/password pair presented with every operation.
type Credentials struct {
	Username string
	Password string
}
