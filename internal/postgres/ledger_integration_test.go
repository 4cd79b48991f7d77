//go:build integration
// +build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakotapp/hakot/internal"
	"github.com/hakotapp/hakot/internal/domain"
)

// testStore connects to the database named in .env.test and runs the
// migrations. Skips when no test database is configured.
func testStore(t *testing.T) *Store {
	t.Helper()

	_ = godotenv.Load("../../.env.test")
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	require.NoError(t, internal.RunMigrations(db))
	require.NoError(t, db.Close())

	pool, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

// Concurrent appends for one user must produce running balances that a
// replay of the entries in (entry_date, entry_id) order reproduces. The
// first appends race against an empty ledger, the rest against a moving
// tail.
func TestAppendSerializesConcurrentWrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			params := domain.AppendEntryParams{
				UserID:      userID,
				Date:        now,
				Description: "Payment received",
				Reference:   fmt.Sprintf("rcpt-%s-%d", userID, i),
				CreditCents: 100,
			}
			if i%2 == 0 {
				params.Description = "Weekly pickup invoice"
				params.Reference = fmt.Sprintf("inv-%s-%d", userID, i)
				params.CreditCents = 0
				params.DebitCents = 100
			}
			_, err := store.Append(ctx, params)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := store.Entries(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, writers)

	var replayed int64
	for _, e := range entries {
		replayed = replayed - e.CreditCents + e.DebitCents
		assert.Equal(t, replayed, e.RunningBalanceCents, "entry %d", e.EntryID)
	}

	balance, err := store.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, replayed, balance)
}

func TestAppendRejectsDuplicateReference(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	userID := uuid.New()

	ref := "rcpt-" + uuid.New().String()
	_, err := store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: time.Now(), Description: "Payment received",
		Reference: ref, CreditCents: 5000,
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: time.Now(), Description: "Payment received",
		Reference: ref, CreditCents: 5000,
	})
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestAppendRejectsBackdatedEntry(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	_, err := store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: now, Description: "Weekly pickup invoice", DebitCents: 19900,
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: now.Add(-time.Hour), Description: "Payment received", CreditCents: 19900,
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
