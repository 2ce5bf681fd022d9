package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
	account_id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS ledger_reservations (
	reservation_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	amount BIGINT NOT NULL,
	state TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	settled_at TIMESTAMPTZ
);`

// Postgres is a ledger backed by PostgreSQL. Every movement runs in a
// transaction holding row locks on the touched account or reservation.
type Postgres struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// PostgresOption configures a Postgres ledger.
type PostgresOption func(*Postgres)

// WithPostgresIDGenerator overrides reservation ID generation.
func WithPostgresIDGenerator(gen func() string) PostgresOption {
	return func(p *Postgres) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithPostgresClock overrides the settlement timestamp source.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *Postgres) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPostgres wraps an open database.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, newID: newReservationID, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres connects with a lib/pq DSN and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	p := NewPostgres(db, opts...)
	if err := p.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the ledger tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Reserve implements pipeline.Ledger.
func (p *Postgres) Reserve(ctx context.Context, accountID string, amount int) (id string, err error) {
	defer func() { record("postgres", "reserve", err) }()
	if amount < 0 {
		return "", pipeline.ErrInvalidAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx,
		"SELECT balance FROM ledger_accounts WHERE account_id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("locking account %s: %w", accountID, err)
	}
	if balance < int64(amount) {
		return "", fmt.Errorf("%w: account %s has %d, needs %d", pipeline.ErrInsufficientCredit, accountID, balance, amount)
	}

	if amount > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE ledger_accounts SET balance = balance - $2 WHERE account_id = $1", accountID, amount); err != nil {
			return "", fmt.Errorf("debiting balance: %w", err)
		}
	}
	id = p.newID()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO ledger_reservations (reservation_id, account_id, amount, state, created_at) VALUES ($1, $2, $3, $4, $5)",
		id, accountID, amount, StateHeld, p.now().UTC()); err != nil {
		return "", fmt.Errorf("recording reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing reservation: %w", err)
	}
	return id, nil
}

// Debit implements pipeline.Ledger.
func (p *Postgres) Debit(ctx context.Context, reservationID string) (err error) {
	defer func() { record("postgres", "debit", err) }()
	return p.settle(ctx, reservationID, StateDebited)
}

// Release implements pipeline.Ledger.
func (p *Postgres) Release(ctx context.Context, reservationID string) (err error) {
	defer func() { record("postgres", "release", err) }()
	return p.settle(ctx, reservationID, StateReleased)
}

func (p *Postgres) settle(ctx context.Context, reservationID, target string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		account string
		amount  int64
		state   string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT account_id, amount, state FROM ledger_reservations WHERE reservation_id = $1 FOR UPDATE",
		reservationID).Scan(&account, &amount, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", pipeline.ErrReservationNotFound, reservationID)
	}
	if err != nil {
		return fmt.Errorf("locking reservation %s: %w", reservationID, err)
	}
	switch state {
	case target:
		return nil
	case StateDebited, StateReleased:
		return fmt.Errorf("%w: %s was %s", pipeline.ErrReservationSettled, reservationID, state)
	}

	if target == StateReleased && amount > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_accounts (account_id, balance) VALUES ($1, $2)
			ON CONFLICT (account_id) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance`,
			account, amount); err != nil {
			return fmt.Errorf("refunding balance: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE ledger_reservations SET state = $2, settled_at = $3 WHERE reservation_id = $1",
		reservationID, target, p.now().UTC()); err != nil {
		return fmt.Errorf("settling reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settlement: %w", err)
	}
	return nil
}

// TopUp implements Ledger.
func (p *Postgres) TopUp(ctx context.Context, accountID string, amount int) (int, error) {
	if amount < 0 {
		return 0, pipeline.ErrInvalidAmount
	}
	var balance int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO ledger_accounts (account_id, balance) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance
		RETURNING balance`, accountID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("topping up %s: %w", accountID, err)
	}
	return int(balance), nil
}

// Balance implements Ledger.
func (p *Postgres) Balance(ctx context.Context, accountID string) (int, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx,
		"SELECT balance FROM ledger_accounts WHERE account_id = $1", accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance of %s: %w", accountID, err)
	}
	return int(balance), nil
}
