// Package poller implements the fallback completion path: it checks the
// gateway on a fixed interval until the payment reaches a terminal status
// or the attempt budget runs out. It races the redirect return and the
// webhook; whichever path confirms first wins and the others become
// duplicate confirmations.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/service"
	"github.com/hakotapp/hakot/internal/telemetry"
)

const (
	// DefaultInterval between gateway status checks.
	DefaultInterval = 10 * time.Second

	// DefaultMaxAttempts caps the total checks for one payment. With the
	// default interval the poller gives up after five minutes.
	DefaultMaxAttempts = 30
)

// Poller watches in-flight payments.
type Poller struct {
	provider  gateway.Provider
	confirmer service.ConfirmationService
	pending   domain.PendingIntentStore
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger

	interval    time.Duration
	maxAttempts int

	wg sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

// Config tunes the poll loop. Zero values fall back to the defaults.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// New creates a poller.
func New(
	provider gateway.Provider,
	confirmer service.ConfirmationService,
	pending domain.PendingIntentStore,
	cfg Config,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Poller{
		provider:    provider,
		confirmer:   confirmer,
		pending:     pending,
		metrics:     metrics,
		logger:      logger,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		active:      make(map[string]struct{}),
	}
}

// Watch polls one payment until it resolves. It returns the activation on
// success, service.ErrPaymentTimeout when the attempt budget is exhausted
// with the payment still pending, service.ErrConfirmationMismatch when the
// gateway reports a terminal failure, or ctx.Err on cancellation.
//
// On timeout nothing is cleaned up: the subscription stays pending and the
// slot stays populated, so a redirect, a webhook or a resumed poll can
// still complete the payment later.
func (p *Poller) Watch(ctx context.Context, intent domain.PendingIntent) (*service.Activation, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		// Another path may have finished while we slept.
		slot, err := p.pending.Load(ctx, intent.UserID)
		if err == nil && (slot == nil || slot.SourceID != intent.SourceID) {
			p.observeAttempts(attempt)
			p.logger.Debug("poll stopped, slot resolved elsewhere", "source_id", intent.SourceID)
			return nil, nil
		}

		status, err := p.provider.GetStatus(ctx, intent.SourceID)
		if err != nil {
			// Transient gateway trouble still consumes the attempt.
			p.logger.Warn("poll status check failed",
				"source_id", intent.SourceID,
				"attempt", attempt,
				"error", err,
			)
			continue
		}
		if !status.Terminal() {
			continue
		}

		p.observeAttempts(attempt)
		activation, err := p.confirmer.Confirm(ctx, service.ConfirmParams{
			SourceID:       intent.SourceID,
			SubscriptionID: intent.SubscriptionID,
			Trigger:        service.TriggerPoller,
		})
		if err != nil {
			if errors.Is(err, service.ErrConfirmationInProgress) {
				// Another path holds the claim; keep watching until the
				// slot resolves.
				continue
			}
			p.logger.Info("poll found terminal status but confirmation failed",
				"source_id", intent.SourceID,
				"status", status,
				"error", err,
			)
			return nil, err
		}
		return activation, nil
	}

	if p.metrics != nil {
		p.metrics.PollerTimeouts.Inc()
	}
	p.logger.Warn("poll budget exhausted",
		"source_id", intent.SourceID,
		"attempts", p.maxAttempts,
	)
	return nil, service.ErrPaymentTimeout
}

// Start spawns Watch in the background. Used by the payment handler right
// after a checkout is created. A source that is already being watched is
// not watched twice, so re-requesting an open checkout does not stack
// pollers on the same source.
func (p *Poller) Start(ctx context.Context, intent domain.PendingIntent) {
	p.mu.Lock()
	if _, watching := p.active[intent.SourceID]; watching {
		p.mu.Unlock()
		return
	}
	p.active[intent.SourceID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.active, intent.SourceID)
			p.mu.Unlock()
		}()
		if _, err := p.Watch(ctx, intent); err != nil && ctx.Err() == nil {
			p.logger.Debug("background poll ended", "source_id", intent.SourceID, "error", err)
		}
	}()
}

// Resume restarts background polls for every slot that survived a process
// restart.
func (p *Poller) Resume(ctx context.Context) error {
	intents, err := p.pending.Open(ctx)
	if err != nil {
		return err
	}
	for _, intent := range intents {
		p.logger.Info("resuming poll", "source_id", intent.SourceID, "user_id", intent.UserID)
		p.Start(ctx, intent)
	}
	return nil
}

// Wait blocks until every background poll has returned. Called on shutdown
// after the watch context is cancelled.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) observeAttempts(n int) {
	if p.metrics != nil {
		p.metrics.PollerAttempts.Observe(float64(n))
	}
}
