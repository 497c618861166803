// Package insights keeps the three derived aggregates for a user coherent
// with the raw ledger: it decides cache hit/miss/stale, recomputes through
// core.Compute, and writes the results back.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// DefaultTTL is how long a persisted aggregate stays trusted when no newer
// ledger mutation exists.
const DefaultTTL = 30 * time.Minute

// ErrStorageUnavailable marks persistence failures that the caller may retry.
// It wraps the underlying store error.
var ErrStorageUnavailable = errors.New("insights storage unavailable")

// LedgerSource is the read-only view over a user's raw transactions.
type LedgerSource interface {
	ListForUser(ctx context.Context, userID string) ([]core.Transaction, error)
	// LatestMutation reports when the user's ledger last changed. ok is
	// false when the user has no transactions.
	LatestMutation(ctx context.Context, userID string) (t time.Time, ok bool, err error)
}

// AggregateStore persists the three per-user insight documents. Absent
// documents are reported as storage.ErrNotFound.
type AggregateStore interface {
	GetMonthly(ctx context.Context, userID string) (core.MonthlySummary, error)
	GetCategories(ctx context.Context, userID string) (core.CategoriesSummary, error)
	GetRisk(ctx context.Context, userID string) (core.RiskInsight, error)
	PutMonthly(ctx context.Context, userID string, s core.MonthlySummary) error
	PutCategories(ctx context.Context, userID string, s core.CategoriesSummary) error
	PutRisk(ctx context.Context, userID string, r core.RiskInsight) error
}

// Service is the cache coordinator. Safe for concurrent use: it holds no
// per-user state, and concurrent recalculates for the same user converge
// (each writer persists a self-consistent triple, last writer wins per
// document).
type Service struct {
	ledger LedgerSource
	store  AggregateStore
	ttl    time.Duration
	now    func() time.Time
}

func NewService(ledger LedgerSource, store AggregateStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		ledger: ledger,
		store:  store,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Snapshot returns the user's insight triple, recomputing transparently when
// the cache is absent, expired, or dirtied by a newer ledger mutation. A hit
// performs no writes.
func (s *Service) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	cached, ok := s.tryRead(ctx, userID)
	if ok {
		return cached, nil
	}
	slog.DebugContext(ctx, "Insights cache missing or stale, recalculating", "user_id", userID)
	return s.Recalculate(ctx, userID)
}

// Recalculate unconditionally recomputes and persists all three aggregates.
// Called after every mutating ledger write and for explicit refreshes.
func (s *Service) Recalculate(ctx context.Context, userID string) (core.Snapshot, error) {
	transactions, err := s.ledger.ListForUser(ctx, userID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("list transactions for user %s: %w", userID, err)
	}

	// One shared now keeps the triple internally consistent.
	now := s.now()
	monthly, categories, risk := core.Compute(transactions, now)

	// Persisted sequentially without a cross-document lock: a concurrent
	// reader that catches a partial write sees an absent or stale document
	// and recomputes, so the window never yields an inconsistent read.
	if err := s.store.PutMonthly(ctx, userID, monthly); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: persist monthly summary: %w", ErrStorageUnavailable, err)
	}
	if err := s.store.PutCategories(ctx, userID, categories); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: persist categories summary: %w", ErrStorageUnavailable, err)
	}
	if err := s.store.PutRisk(ctx, userID, risk); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: persist risk insight: %w", ErrStorageUnavailable, err)
	}

	slog.InfoContext(ctx, "Insights recalculated",
		"user_id", userID,
		"transactions", len(transactions),
		"risk_score", risk.Score)

	return core.Snapshot{
		Monthly:    monthly,
		Categories: categories,
		Risk:       risk,
		Refreshed:  true,
	}, nil
}

// tryRead is the pure half of the read-through contract: it returns the
// cached triple only when all three documents are present, within TTL, and
// not dirtied by a newer ledger mutation. Any read failure degrades to a
// miss so correctness comes from recomputation rather than guessing.
func (s *Service) tryRead(ctx context.Context, userID string) (core.Snapshot, bool) {
	monthly, err := s.store.GetMonthly(ctx, userID)
	if err != nil {
		s.logReadMiss(ctx, userID, "monthly", err)
		return core.Snapshot{}, false
	}
	categories, err := s.store.GetCategories(ctx, userID)
	if err != nil {
		s.logReadMiss(ctx, userID, "categories", err)
		return core.Snapshot{}, false
	}
	risk, err := s.store.GetRisk(ctx, userID)
	if err != nil {
		s.logReadMiss(ctx, userID, "risk", err)
		return core.Snapshot{}, false
	}

	now := s.now()
	threshold := now.Add(-s.ttl)
	if monthly.ComputedAt.Before(threshold) ||
		categories.ComputedAt.Before(threshold) ||
		risk.ComputedAt.Before(threshold) {
		return core.Snapshot{}, false
	}

	// Dirty check: a transaction written after the cache was built
	// invalidates it even inside the TTL window.
	newest := monthly.ComputedAt
	if categories.ComputedAt.After(newest) {
		newest = categories.ComputedAt
	}
	if risk.ComputedAt.After(newest) {
		newest = risk.ComputedAt
	}
	mutatedAt, hasMutations, err := s.ledger.LatestMutation(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Ledger mutation clock unavailable, treating cache as dirty",
			"user_id", userID, "error", err)
		return core.Snapshot{}, false
	}
	if hasMutations && mutatedAt.After(newest) {
		return core.Snapshot{}, false
	}

	return core.Snapshot{
		Monthly:    monthly,
		Categories: categories,
		Risk:       risk,
		Refreshed:  false,
	}, true
}

func (s *Service) logReadMiss(ctx context.Context, userID, document string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	slog.WarnContext(ctx, "Insight document read failed, treating as miss",
		"user_id", userID, "document", document, "error", err)
}
