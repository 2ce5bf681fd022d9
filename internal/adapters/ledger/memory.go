package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

// Totals are cumulative credit movements.
type Totals struct {
	Reserved int `json:"reserved"`
	Debited  int `json:"debited"`
	Released int `json:"released"`
}

// Outstanding is the amount reserved but not yet settled.
func (t Totals) Outstanding() int {
	return t.Reserved - t.Debited - t.Released
}

type reservation struct {
	account string
	amount  int
	state   string
}

// Memory is a mutex-guarded in-process ledger.
type Memory struct {
	mu           sync.Mutex
	balances     map[string]int
	reservations map[string]*reservation
	totals       Totals
	newID        func() string
}

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithBalance seeds an account.
func WithBalance(accountID string, amount int) MemoryOption {
	return func(m *Memory) {
		m.balances[accountID] = amount
	}
}

// WithIDGenerator overrides reservation ID generation.
func WithIDGenerator(gen func() string) MemoryOption {
	return func(m *Memory) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewMemory creates an empty ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		balances:     make(map[string]int),
		reservations: make(map[string]*reservation),
		newID:        newReservationID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reserve implements pipeline.Ledger.
func (m *Memory) Reserve(ctx context.Context, accountID string, amount int) (id string, err error) {
	defer func() { record("memory", "reserve", err) }()
	if amount < 0 {
		return "", pipeline.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[accountID] < amount {
		return "", fmt.Errorf("%w: account %s has %d, needs %d",
			pipeline.ErrInsufficientCredit, accountID, m.balances[accountID], amount)
	}
	m.balances[accountID] -= amount
	id = m.newID()
	m.reservations[id] = &reservation{account: accountID, amount: amount, state: StateHeld}
	m.totals.Reserved += amount
	return id, nil
}

// Debit implements pipeline.Ledger.
func (m *Memory) Debit(ctx context.Context, reservationID string) (err error) {
	defer func() { record("memory", "debit", err) }()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(reservationID)
	if err != nil {
		return err
	}
	switch r.state {
	case StateDebited:
		return nil
	case StateReleased:
		return fmt.Errorf("%w: %s was released", pipeline.ErrReservationSettled, reservationID)
	}
	r.state = StateDebited
	m.totals.Debited += r.amount
	return nil
}

// Release implements pipeline.Ledger.
func (m *Memory) Release(ctx context.Context, reservationID string) (err error) {
	defer func() { record("memory", "release", err) }()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(reservationID)
	if err != nil {
		return err
	}
	switch r.state {
	case StateReleased:
		return nil
	case StateDebited:
		return fmt.Errorf("%w: %s was debited", pipeline.ErrReservationSettled, reservationID)
	}
	r.state = StateReleased
	m.balances[r.account] += r.amount
	m.totals.Released += r.amount
	return nil
}

// TopUp implements Ledger.
func (m *Memory) TopUp(ctx context.Context, accountID string, amount int) (int, error) {
	if amount < 0 {
		return 0, pipeline.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] += amount
	return m.balances[accountID], nil
}

// Balance implements Ledger.
func (m *Memory) Balance(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

// Totals returns cumulative movements.
func (m *Memory) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals
}

// State returns the state of a reservation.
func (m *Memory) State(reservationID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok {
		return "", false
	}
	return r.state, true
}

func (m *Memory) lookup(id string) (*reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrReservationNotFound, id)
	}
	return r, nil
}
