package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hakotapp/hakot/internal/domain"
)

// Save stores the user's single pending payment slot. Saving the same
// source id again is a no-op; a different source id while a slot exists
// is a conflict.
func (s *Store) Save(ctx context.Context, intent domain.PendingIntent) error {
	const op = "pending.save"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_intents (user_id, source_id, subscription_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET source_id = EXCLUDED.source_id
		WHERE pending_intents.source_id = EXCLUDED.source_id`,
		intent.UserID, intent.SourceID, intent.SubscriptionID, intent.CreatedAt,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to save pending intent")
	}

	// The conditional upsert silently skips when a different source holds
	// the slot. Read back to tell the two cases apart.
	stored, err := s.Load(ctx, intent.UserID)
	if err != nil {
		return err
	}
	if stored == nil || stored.SourceID != intent.SourceID {
		return domain.Conflict(op, "user already has a pending payment")
	}
	return nil
}

// Load returns the user's pending payment slot, or nil when empty.
func (s *Store) Load(ctx context.Context, userID uuid.UUID) (*domain.PendingIntent, error) {
	const op = "pending.load"

	var intent domain.PendingIntent
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, source_id, subscription_id, created_at, claimed_at
		FROM pending_intents
		WHERE user_id = $1`,
		userID,
	).Scan(&intent.UserID, &intent.SourceID, &intent.SubscriptionID, &intent.CreatedAt, &intent.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query pending intent")
	}
	return &intent, nil
}

// Open lists every pending slot, oldest first.
func (s *Store) Open(ctx context.Context) ([]domain.PendingIntent, error) {
	const op = "pending.open"

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, source_id, subscription_id, created_at, claimed_at
		FROM pending_intents
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query pending intents")
	}
	defer rows.Close()

	var intents []domain.PendingIntent
	for rows.Next() {
		var intent domain.PendingIntent
		if err := rows.Scan(&intent.UserID, &intent.SourceID, &intent.SubscriptionID, &intent.CreatedAt, &intent.ClaimedAt); err != nil {
			return nil, domain.Internal(err, op, "failed to scan pending intent")
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read pending intents")
	}
	return intents, nil
}

// Claim atomically takes the slot for confirmation. Only one of several
// racing confirmers sees true.
func (s *Store) Claim(ctx context.Context, userID uuid.UUID, sourceID string) (bool, error) {
	const op = "pending.claim"

	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_intents
		SET claimed_at = now()
		WHERE user_id = $1 AND source_id = $2 AND claimed_at IS NULL`,
		userID, sourceID,
	)
	if err != nil {
		return false, domain.Internal(err, op, "failed to claim pending intent")
	}
	return tag.RowsAffected() == 1, nil
}

// Release returns a claimed slot so a later confirmation can retry.
func (s *Store) Release(ctx context.Context, userID uuid.UUID, sourceID string) error {
	const op = "pending.release"

	_, err := s.pool.Exec(ctx, `
		UPDATE pending_intents
		SET claimed_at = NULL
		WHERE user_id = $1 AND source_id = $2`,
		userID, sourceID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to release pending intent")
	}
	return nil
}

// Clear removes the slot once the payment reaches a terminal state.
func (s *Store) Clear(ctx context.Context, userID uuid.UUID, sourceID string) error {
	const op = "pending.clear"

	_, err := s.pool.Exec(ctx, `
		DELETE FROM pending_intents
		WHERE user_id = $1 AND source_id = $2`,
		userID, sourceID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to clear pending intent")
	}
	return nil
}
