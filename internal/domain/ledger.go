package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one line of a user's financial record. Entries are
// append-only: never mutated, never deleted. Corrections are made by
// appending an offsetting entry.
//
// Sign convention: debit increases the amount the user owes, credit
// records a payment that reduces it. RunningBalanceCents at entry k equals
// RunningBalanceCents[k-1] - CreditCents[k] + DebitCents[k], so replaying
// the sequence in (Date, EntryID) order always reproduces stored balances.
type LedgerEntry struct {
	// EntryID is assigned from a monotone sequence so that (Date, EntryID)
	// is a total order even for same-day entries.
	EntryID             int64
	UserID              uuid.UUID
	Date                time.Time
	Description         string
	Reference           string // gateway source id or manual receipt reference
	DebitCents          int64
	CreditCents         int64
	RunningBalanceCents int64
	CreatedAt           time.Time
}
