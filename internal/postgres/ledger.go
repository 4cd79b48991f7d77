package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hakotapp/hakot/internal/domain"
)

// Append writes one ledger entry in its own transaction.
func (s *Store) Append(ctx context.Context, p domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		entry, txErr = appendEntry(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// appendEntry inserts a ledger entry inside tx. Appends for one user are
// serialized with a transaction-scoped advisory lock: locking the tail row
// is not enough, since a concurrent append can commit a newer tail after
// the lock is taken, and an empty ledger has no row to lock at all.
func appendEntry(ctx context.Context, tx pgx.Tx, p domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	const op = "ledger.append"

	if p.DebitCents < 0 || p.CreditCents < 0 {
		return nil, domain.Invalid(op, "debit and credit must be non-negative")
	}
	if p.DebitCents == 0 && p.CreditCents == 0 {
		return nil, domain.Invalid(op, "entry must carry a debit or a credit")
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, p.UserID); err != nil {
		return nil, domain.Internal(err, op, "failed to lock ledger")
	}

	var (
		prevBalance int64
		prevDate    *time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT running_balance_cents, entry_date
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY entry_date DESC, entry_id DESC
		LIMIT 1`,
		p.UserID,
	).Scan(&prevBalance, &prevDate)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Internal(err, op, "failed to read ledger tail")
	}
	if prevDate != nil && p.Date.Before(*prevDate) {
		return nil, domain.Invalid(op, "entry date precedes the latest ledger entry")
	}

	entry := domain.LedgerEntry{
		UserID:              p.UserID,
		Date:                p.Date,
		Description:         p.Description,
		Reference:           p.Reference,
		DebitCents:          p.DebitCents,
		CreditCents:         p.CreditCents,
		RunningBalanceCents: prevBalance - p.CreditCents + p.DebitCents,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_entries
			(user_id, entry_date, description, reference, debit_cents, credit_cents, running_balance_cents)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING entry_id, created_at`,
		p.UserID, p.Date, p.Description, p.Reference,
		p.DebitCents, p.CreditCents, entry.RunningBalanceCents,
	).Scan(&entry.EntryID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "ledger_entries_reference_key") {
			return nil, domain.Conflict(op, "reference already recorded")
		}
		return nil, domain.Internal(err, op, "failed to insert ledger entry")
	}
	return &entry, nil
}

// Entries returns all entries for a user in (entry_date, entry_id) order.
func (s *Store) Entries(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	const op = "ledger.list"

	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, user_id, entry_date, description, COALESCE(reference, ''),
		       debit_cents, credit_cents, running_balance_cents, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY entry_date ASC, entry_id ASC`,
		userID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query ledger entries")
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.EntryID, &e.UserID, &e.Date, &e.Description, &e.Reference,
			&e.DebitCents, &e.CreditCents, &e.RunningBalanceCents, &e.CreatedAt,
		); err != nil {
			return nil, domain.Internal(err, op, "failed to scan ledger entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read ledger entries")
	}
	return entries, nil
}

// Balance returns the user's current balance, zero for an empty ledger.
func (s *Store) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "ledger.balance"

	var balance int64
	err := s.pool.QueryRow(ctx, `
		SELECT running_balance_cents
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY entry_date DESC, entry_id DESC
		LIMIT 1`,
		userID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.Internal(err, op, "failed to read balance")
	}
	return balance, nil
}
