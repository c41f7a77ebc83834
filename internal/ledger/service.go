package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerbook/ledgerbook/internal/metrics"
	"github.com/ledgerbook/ledgerbook/internal/money"
)

// Service owns all account and balance-mutation logic. Credentials are
// re-verified on every operation; the service keeps no session state.
type Service struct {
	repo         Repository
	cost         int
	storeTimeout time.Duration

	// dummyHash is compared against when the username does not exist, so the
	// unknown-user path costs the same as a wrong-password one.
	dummyHash []byte
}

// NewService creates a ledger service. The bcrypt work factor is fixed here
// and applies to all subsequently registered accounts.
func NewService(repo Repository, bcryptCost int, storeTimeout time.Duration) (*Service, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("ledgerbook-dummy-credential"), bcryptCost)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, cost: bcryptCost, storeTimeout: storeTimeout, dummyHash: dummy}, nil
}

// Register creates an account with a zero balance. The username must not
// already exist; the check-and-insert is atomic in the repository.
func (s *Service) Register(ctx context.Context, creds Credentials) (account Account, err error) {
	defer func() { metrics.RecordOperation("register", outcome(err)) }()

	if creds.Username == "" || creds.Password == "" {
		return Account{}, ErrInvalidCredentialInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		return Account{}, err
	}

	account = Account{
		ID:             uuid.New().String(),
		Username:       creds.Username,
		CredentialHash: hash,
		Balance:        0,
		CreatedAt:      time.Now().UTC(),
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err = s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Authenticate verifies a username/password pair and returns the account.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (account Account, err error) {
	defer func() { metrics.RecordOperation("authenticate", outcome(err)) }()
	return s.verify(ctx, creds)
}

// Deposit adds a positive amount to the account balance and returns the new value.
func (s *Service) Deposit(ctx context.Context, creds Credentials, amount money.Amount) (balance money.Amount, err error) {
	defer func() { metrics.RecordOperation("deposit", outcome(err)) }()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	account, err := s.verify(ctx, creds)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.repo.ApplyDelta(ctx, account.Username, amount)
}

// Withdraw removes a positive amount from the account balance. The balance
// never goes negative; exceeding it fails with ErrInsufficientFunds and leaves
// the account untouched.
func (s *Service) Withdraw(ctx context.Context, creds Credentials, amount money.Amount) (balance money.Amount, err error) {
	defer func() { metrics.RecordOperation("withdraw", outcome(err)) }()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	account, err := s.verify(ctx, creds)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.repo.ApplyDelta(ctx, account.Username, -amount)
}

// Balance returns the current balance. Read-only.
func (s *Service) Balance(ctx context.Context, creds Credentials) (balance money.Amount, err error) {
	defer func() { metrics.RecordOperation("balance", outcome(err)) }()

	account, err := s.verify(ctx, creds)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// List returns a snapshot of every account in insertion order. Access control
// is the caller's responsibility.
func (s *Service) List(ctx context.Context) (accounts []Account, err error) {
	defer func() { metrics.RecordOperation("list", outcome(err)) }()

	attempt := func() ([]Account, error) {
		bctx, cancel := s.bound(ctx)
		defer cancel()
		return s.repo.List(bctx)
	}
	accounts, err = attempt()
	if errors.Is(err, ErrStoreUnavailable) {
		accounts, err = attempt()
	}
	return accounts, err
}

// verify looks up the account and checks the password. Lookups are idempotent
// reads and retried once on a store fault; the bcrypt compare always runs so
// response timing does not reveal whether the username exists.
func (s *Service) verify(ctx context.Context, creds Credentials) (Account, error) {
	attempt := func() (Account, error) {
		bctx, cancel := s.bound(ctx)
		defer cancel()
		return s.repo.FindByUsername(bctx, creds.Username)
	}
	account, err := attempt()
	if errors.Is(err, ErrStoreUnavailable) {
		account, err = attempt()
	}
	switch {
	case errors.Is(err, ErrAccountNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(creds.Password))
		return Account{}, ErrAuthenticationFailed
	case err != nil:
		return Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword(account.CredentialHash, []byte(creds.Password)); err != nil {
		return Account{}, ErrAuthenticationFailed
	}
	return account, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrDuplicateUsername):
		return "duplicate_username"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCredentialInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
