// Package ledger records append-only financial entries for driver payouts
// and the platform share.
package ledger

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type Entry struct {
	ID          string
	AccountID   string
	Amount      float64
	Direction   Direction
	Description string
	CreatedAt   time.Time
}

// Ledger appends entries. Implementations never mutate or delete.
type Ledger interface {
	Record(ctx context.Context, accountID string, amount float64, dir Direction, description string) error
}

type MemoryLedger struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (m *MemoryLedger) Record(ctx context.Context, accountID string, amount float64, dir Direction, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Amount:      amount,
		Direction:   dir,
		Description: description,
		CreatedAt:   time.Now(),
	})
	return nil
}

// Entries returns a copy of all recorded entries, oldest first.
func (m *MemoryLedger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// AccountEntries returns the entries for one account.
func (m *MemoryLedger) AccountEntries(accountID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range m.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger { return &PostgresLedger{db: db} }

func (p *PostgresLedger) Record(ctx context.Context, accountID string, amount float64, dir Direction, description string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ledger_entries(id, account_id, amount, direction, description, created_at)
		VALUES($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), accountID, amount, dir, description, time.Now())
	return err
}
