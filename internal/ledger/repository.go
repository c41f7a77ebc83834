package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerbook/ledgerbook/internal/money"
)

// Repository persists accounts, one record per username. Implementations must
// make Create fail atomically on an existing username and must apply balance
// deltas atomically with respect to concurrent mutations of the same account.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByUsername(ctx context.Context, username string) (Account, error)
	// ApplyDelta adds delta to the account balance and returns the new value.
	// It fails with ErrInsufficientFunds when the result would be negative and
	// never applies a partial update.
	ApplyDelta(ctx context.Context, username string, delta money.Amount) (money.Amount, error)
	List(ctx context.Context) ([]Account, error)
}

// PostgresRepository implements Repository using PostgreSQL. Uniqueness is
// enforced by a conditional insert and balance updates happen as a single
// guarded UPDATE, so concurrent mutations on one row serialize in the database.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account, failing if the username is already taken.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	accountID, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `INSERT INTO accounts (id, username, credential_hash, balance, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (username) DO NOTHING`,
		accountID, account.Username, account.CredentialHash, int64(account.Balance), account.CreatedAt.UTC())
	if err != nil {
		return storeFault(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateUsername
	}
	return nil
}

// FindByUsername fetches a single account.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, credential_hash, balance, created_at
        FROM accounts WHERE username = $1`, username)

	var (
		id        uuid.UUID
		balance   int64
		createdAt time.Time
		account   Account
	)
	if err := row.Scan(&id, &account.Username, &account.CredentialHash, &balance, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, storeFault(err)
	}
	account.ID = id.String()
	account.Balance = money.Amount(balance)
	account.CreatedAt = createdAt.UTC()
	return account, nil
}

// ApplyDelta mutates the balance in place. The WHERE guard keeps the balance
// non-negative and makes the read-modify-write a single atomic statement.
func (r *PostgresRepository) ApplyDelta(ctx context.Context, username string, delta money.Amount) (money.Amount, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts
        SET balance = balance + $1
        WHERE username = $2 AND balance + $1 >= 0
        RETURNING balance`, int64(delta), username)

	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the account is missing or the guard rejected the delta.
			if _, findErr := r.FindByUsername(ctx, username); findErr != nil {
				return 0, findErr
			}
			return 0, ErrInsufficientFunds
		}
		return 0, storeFault(err)
	}
	return money.Amount(balance), nil
}

// List returns all accounts in insertion order.
func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, username, credential_hash, balance, created_at
        FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, storeFault(err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			id        uuid.UUID
			balance   int64
			createdAt time.Time
			account   Account
		)
		if err := rows.Scan(&id, &account.Username, &account.CredentialHash, &balance, &createdAt); err != nil {
			return nil, storeFault(err)
		}
		account.ID = id.String()
		account.Balance = money.Amount(balance)
		account.CreatedAt = createdAt.UTC()
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault(err)
	}
	return accounts, nil
}

// storeFault folds infrastructure-level failures (connectivity, timeouts,
// cancelled contexts) into ErrStoreUnavailable so the service layer has a
// single error to branch on.
func storeFault(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrStoreUnavailable, err)
}
