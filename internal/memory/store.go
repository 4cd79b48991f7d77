// Package memory provides in-memory store implementations with the same
// transactional semantics as the postgres stores. Used by tests and by
// the server's dev mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
)

// Store implements domain.SubscriptionStore, domain.LedgerStore,
// domain.PlanStore and domain.PendingIntentStore behind a single mutex,
// which makes every store operation atomic.
type Store struct {
	mu sync.Mutex

	subs     map[uuid.UUID]*domain.Subscription
	invoices map[uuid.UUID]*domain.Invoice // keyed by subscription id
	intents  map[string]*domain.PaymentIntent
	plans    map[uuid.UUID]domain.Plan
	pending  map[uuid.UUID]*domain.PendingIntent

	ledger map[uuid.UUID][]domain.LedgerEntry
	refs   map[string]struct{}
	seq    int64
}

// Compile-time checks.
var (
	_ domain.SubscriptionStore  = (*Store)(nil)
	_ domain.LedgerStore        = (*Store)(nil)
	_ domain.PlanStore          = (*Store)(nil)
	_ domain.PendingIntentStore = (*Store)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		subs:     make(map[uuid.UUID]*domain.Subscription),
		invoices: make(map[uuid.UUID]*domain.Invoice),
		intents:  make(map[string]*domain.PaymentIntent),
		plans:    make(map[uuid.UUID]domain.Plan),
		pending:  make(map[uuid.UUID]*domain.PendingIntent),
		ledger:   make(map[uuid.UUID][]domain.LedgerEntry),
		refs:     make(map[string]struct{}),
	}
}

// =============================================================================
// PlanStore
// =============================================================================

// SeedPlan inserts a plan. Used by tests and dev bootstrap.
func (s *Store) SeedPlan(p domain.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

func (s *Store) Plan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, domain.NotFound("plan.get", "plan", id.String())
	}
	return &p, nil
}

func (s *Store) ActivePlans(ctx context.Context) ([]domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Plan
	for _, p := range s.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out, nil
}

// =============================================================================
// SubscriptionStore
// =============================================================================

func (s *Store) CreateCheckout(ctx context.Context, sub domain.Subscription, inv domain.Invoice, debit domain.AppendEntryParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs {
		if existing.UserID == sub.UserID && existing.Status.Blocking() {
			return domain.Conflict("subscription.checkout", "user already has an open subscription")
		}
	}

	if _, err := s.appendLocked(debit); err != nil {
		return err
	}
	subCopy := sub
	invCopy := inv
	s.subs[sub.ID] = &subCopy
	s.invoices[inv.SubscriptionID] = &invCopy
	return nil
}

func (s *Store) Subscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, domain.NotFound("subscription.get", "subscription", id.String())
	}
	out := *sub
	return &out, nil
}

func (s *Store) BlockingByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status.Blocking() {
			out := *sub
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) InvoiceBySubscription(ctx context.Context, subID uuid.UUID) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[subID]
	if !ok {
		return nil, domain.NotFound("invoice.get", "invoice", subID.String())
	}
	out := *inv
	return &out, nil
}

func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return domain.NotFound("subscription.cancel", "subscription", id.String())
	}
	if sub.Status != domain.SubscriptionPending && sub.Status != domain.SubscriptionActive {
		return domain.Conflict("subscription.cancel", "subscription is not cancellable")
	}
	sub.Status = domain.SubscriptionCancelled
	sub.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CreateIntent(ctx context.Context, intent domain.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.SourceID]; exists {
		return domain.Conflict("intent.create", "source id already exists")
	}
	for _, other := range s.intents {
		if other.SubscriptionID == intent.SubscriptionID && !other.Status.Terminal() {
			return domain.Conflict("intent.create", "subscription already has an open payment intent")
		}
	}
	cp := intent
	s.intents[intent.SourceID] = &cp
	return nil
}

func (s *Store) IntentBySource(ctx context.Context, sourceID string) (*domain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[sourceID]
	if !ok {
		return nil, domain.NotFound("intent.get", "payment intent", sourceID)
	}
	out := *intent
	return &out, nil
}

func (s *Store) CloseIntent(ctx context.Context, sourceID string, status domain.IntentStatus) error {
	if status != domain.IntentFailed && status != domain.IntentExpired {
		return domain.Invalid("intent.close", "close status must be failed or expired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[sourceID]
	if !ok {
		return domain.NotFound("intent.close", "payment intent", sourceID)
	}
	if intent.Status.Terminal() {
		return domain.Conflict("intent.close", "payment intent already terminal")
	}
	intent.Status = status
	return nil
}

func (s *Store) CommitActivation(ctx context.Context, p domain.ActivationCommit) (*domain.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[p.SourceID]
	if !ok {
		return nil, false, domain.NotFound("confirm.commit", "payment intent", p.SourceID)
	}

	// Status-guarded update: a concurrent caller that already completed the
	// intent makes this a no-op replay.
	if intent.Status == domain.IntentCompleted {
		return nil, false, nil
	}
	if intent.Status.Terminal() {
		return nil, false, domain.Conflict("confirm.commit", "payment intent already closed")
	}

	sub, ok := s.subs[p.SubscriptionID]
	if !ok {
		return nil, false, domain.NotFound("confirm.commit", "subscription", p.SubscriptionID.String())
	}
	inv, ok := s.invoices[p.SubscriptionID]
	if !ok {
		return nil, false, domain.NotFound("confirm.commit", "invoice", p.SubscriptionID.String())
	}

	entry, err := s.appendLocked(domain.AppendEntryParams{
		UserID:      p.UserID,
		Date:        p.ConfirmedAt,
		Description: p.Description,
		Reference:   p.SourceID,
		CreditCents: p.AmountCents,
	})
	if err != nil {
		return nil, false, err
	}

	confirmedAt := p.ConfirmedAt
	intent.Status = domain.IntentCompleted
	intent.ConfirmedAt = &confirmedAt
	sub.Status = domain.SubscriptionActive
	sub.UpdatedAt = confirmedAt
	inv.Status = domain.InvoicePaid

	return entry, true, nil
}

// =============================================================================
// LedgerStore
// =============================================================================

func (s *Store) Append(ctx context.Context, p domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(p)
}

// appendLocked validates and appends one entry. Caller holds s.mu.
func (s *Store) appendLocked(p domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	if p.DebitCents < 0 || p.CreditCents < 0 {
		return nil, domain.Invalid("ledger.append", "debit and credit must be non-negative")
	}
	if p.DebitCents == 0 && p.CreditCents == 0 {
		return nil, domain.Invalid("ledger.append", "entry must carry a debit or a credit")
	}
	if p.Reference != "" {
		if _, seen := s.refs[p.Reference]; seen {
			return nil, domain.Conflict("ledger.append", "reference already recorded")
		}
	}

	entries := s.ledger[p.UserID]
	var prev int64
	if n := len(entries); n > 0 {
		prev = entries[n-1].RunningBalanceCents
		// The ledger is strictly chronological per user so that replay in
		// (date, entry_id) order reproduces stored balances.
		if p.Date.Before(entries[n-1].Date) {
			return nil, domain.Invalid("ledger.append", "entry date precedes the latest ledger entry")
		}
	}

	s.seq++
	entry := domain.LedgerEntry{
		EntryID:             s.seq,
		UserID:              p.UserID,
		Date:                p.Date,
		Description:         p.Description,
		Reference:           p.Reference,
		DebitCents:          p.DebitCents,
		CreditCents:         p.CreditCents,
		RunningBalanceCents: prev - p.CreditCents + p.DebitCents,
		CreatedAt:           time.Now(),
	}

	s.ledger[p.UserID] = append(entries, entry)
	if p.Reference != "" {
		s.refs[p.Reference] = struct{}{}
	}
	return &entry, nil
}

func (s *Store) Entries(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ledger[userID]
	out := make([]domain.LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Store) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ledger[userID]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].RunningBalanceCents, nil
}

// =============================================================================
// PendingIntentStore
// =============================================================================

func (s *Store) Save(ctx context.Context, intent domain.PendingIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pending[intent.UserID]; ok && existing.SourceID != intent.SourceID {
		return domain.Conflict("pending.save", "user already has a pending payment")
	}
	cp := intent
	s.pending[intent.UserID] = &cp
	return nil
}

func (s *Store) Load(ctx context.Context, userID uuid.UUID) (*domain.PendingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.pending[userID]
	if !ok {
		return nil, nil
	}
	out := *intent
	return &out, nil
}

func (s *Store) Open(ctx context.Context) ([]domain.PendingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PendingIntent, 0, len(s.pending))
	for _, intent := range s.pending {
		out = append(out, *intent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Claim(ctx context.Context, userID uuid.UUID, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.pending[userID]
	if !ok || intent.SourceID != sourceID || intent.ClaimedAt != nil {
		return false, nil
	}
	now := time.Now()
	intent.ClaimedAt = &now
	return true, nil
}

func (s *Store) Release(ctx context.Context, userID uuid.UUID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.pending[userID]
	if ok && intent.SourceID == sourceID {
		intent.ClaimedAt = nil
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, userID uuid.UUID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.pending[userID]
	if ok && intent.SourceID == sourceID {
		delete(s.pending, userID)
	}
	return nil
}
