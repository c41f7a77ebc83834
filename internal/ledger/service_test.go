package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerbook/ledgerbook/internal/money"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryRepository(), bcrypt.MinCost, time.Second)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, Credentials{Username: "alice", Password: "pw1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.ID == "" {
		t.Fatal("expected account ID to be assigned")
	}
	if account.Balance != 0 {
		t.Fatalf("expected zero starting balance, got %d", account.Balance)
	}

	authed, err := svc.Authenticate(ctx, Credentials{Username: "alice", Password: "pw1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != account.ID {
		t.Fatalf("expected account %s, got %s", account.ID, authed.ID)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Username: "alice", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("wrong password: expected ErrAuthenticationFailed, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Username: "nobody", Password: "pw1"}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("unknown user: expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Username: "alice", Password: "pw1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Deposit(ctx, Credentials{Username: "alice", Password: "pw1"}, 5_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := svc.Register(ctx, Credentials{Username: "alice", Password: "other"}); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	// The existing account is untouched: old password still works, balance kept.
	balance, err := svc.Balance(ctx, Credentials{Username: "alice", Password: "pw1"})
	if err != nil {
		t.Fatalf("balance after duplicate register: %v", err)
	}
	if balance != 5_000 {
		t.Fatalf("expected balance 5000, got %d", balance)
	}
}

func TestRegisterRejectsEmptyInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Username: "", Password: "pw"}); !errors.Is(err, ErrInvalidCredentialInput) {
		t.Fatalf("empty username: expected ErrInvalidCredentialInput, got %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Username: "bob", Password: ""}); !errors.Is(err, ErrInvalidCredentialInput) {
		t.Fatalf("empty password: expected ErrInvalidCredentialInput, got %v", err)
	}
}

func TestDepositWithdrawScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	creds := Credentials{Username: "alice", Password: "pw1"}

	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}

	balance, err := svc.Deposit(ctx, creds, 10_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if balance != 10_000 {
		t.Fatalf("expected balance 10000 after deposit, got %d", balance)
	}

	balance, err = svc.Withdraw(ctx, creds, 4_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if balance != 6_000 {
		t.Fatalf("expected balance 6000 after withdraw, got %d", balance)
	}

	if _, err := svc.Withdraw(ctx, creds, 100_000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err = svc.Balance(ctx, creds)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 6_000 {
		t.Fatalf("failed withdraw must not change balance, got %d", balance)
	}

	if _, err := svc.Balance(ctx, Credentials{Username: "alice", Password: "wrongpw"}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	creds := Credentials{Username: "bob", Password: "pw"}

	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Deposit(ctx, creds, 7_500); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	if _, err := svc.Deposit(ctx, creds, 1_234); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, err := svc.Withdraw(ctx, creds, 1_234)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if balance != 7_500 {
		t.Fatalf("expected round trip back to 7500, got %d", balance)
	}
}

func TestInvalidAmounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	creds := Credentials{Username: "carol", Password: "pw"}

	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, amount := range []money.Amount{0, -100} {
		if _, err := svc.Deposit(ctx, creds, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("deposit %d: expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := svc.Withdraw(ctx, creds, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("withdraw %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestConcurrentDeposits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	creds := Credentials{Username: "dave", Password: "pw"}

	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}

	const workers = 20
	const amount = 1_000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Deposit(ctx, creds, amount); err != nil {
				t.Errorf("deposit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, creds)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != workers*amount {
		t.Fatalf("lost updates: expected %d, got %d", workers*amount, balance)
	}
}

// faultingRepository wraps another Repository and fails a configurable number
// of calls per method with a store fault before delegating.
type faultingRepository struct {
	Repository
	findFailures  int
	listFailures  int
	deltaFailures int
	deltaCalls    int
}

func (f *faultingRepository) FindByUsername(ctx context.Context, username string) (Account, error) {
	if f.findFailures > 0 {
		f.findFailures--
		return Account{}, ErrStoreUnavailable
	}
	return f.Repository.FindByUsername(ctx, username)
}

func (f *faultingRepository) List(ctx context.Context) ([]Account, error) {
	if f.listFailures > 0 {
		f.listFailures--
		return nil, ErrStoreUnavailable
	}
	return f.Repository.List(ctx)
}

func (f *faultingRepository) ApplyDelta(ctx context.Context, username string, delta money.Amount) (money.Amount, error) {
	f.deltaCalls++
	if f.deltaFailures > 0 {
		f.deltaFailures--
		return 0, ErrStoreUnavailable
	}
	return f.Repository.ApplyDelta(ctx, username, delta)
}

func newFaultingService(t *testing.T) (*Service, *faultingRepository) {
	t.Helper()
	repo := &faultingRepository{Repository: NewMemoryRepository()}
	svc, err := NewService(repo, bcrypt.MinCost, time.Second)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func TestReadsRetryOnceOnStoreFault(t *testing.T) {
	svc, repo := newFaultingService(t)
	ctx := context.Background()
	creds := Credentials{Username: "alice", Password: "pw1"}

	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}

	// A single lookup fault is absorbed by the retry.
	repo.findFailures = 1
	if _, err := svc.Authenticate(ctx, creds); err != nil {
		t.Fatalf("authenticate after transient fault: %v", err)
	}

	// Two consecutive faults exhaust the retry and surface.
	repo.findFailures = 2
	if _, err := svc.Authenticate(ctx, creds); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable after persistent fault, got %v", err)
	}

	repo.listFailures = 1
	accounts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list after transient fault: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}

	repo.listFailures = 2
	if _, err := svc.List(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from list, got %v", err)
	}
}

func TestMutationsAreNotRetriedOnStoreFault(t *testing.T) {
	svc, repo := newFaultingService(t)
	ctx := context.Background()
	creds := Credentials{Username: "alice", Password: "pw1"}

	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}

	repo.deltaFailures = 1
	if _, err := svc.Deposit(ctx, creds, 1_000); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if repo.deltaCalls != 1 {
		t.Fatalf("mutation must not be retried: expected 1 ApplyDelta call, got %d", repo.deltaCalls)
	}

	repo.deltaCalls = 0
	repo.deltaFailures = 1
	if _, err := svc.Withdraw(ctx, creds, 500); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if repo.deltaCalls != 1 {
		t.Fatalf("mutation must not be retried: expected 1 ApplyDelta call, got %d", repo.deltaCalls)
	}

	// The failed writes left the balance untouched.
	balance, err := svc.Balance(ctx, creds)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 after failed mutations, got %d", balance)
	}
}

func TestListReturnsInsertionOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		if _, err := svc.Register(ctx, Credentials{Username: name, Password: "pw"}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	accounts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(accounts))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if accounts[i].Username != want {
			t.Fatalf("expected accounts[%d] = %s, got %s", i, want, accounts[i].Username)
		}
	}
}
