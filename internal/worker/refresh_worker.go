// Package worker keeps insight documents warm: it reacts to transaction
// events from the broker and periodically sweeps every active user.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"finledger/internal/amqp"
	"finledger/internal/core"
)

// ActiveUserSource lists users with at least one ledger mutation.
type ActiveUserSource interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// SnapshotSource serves and rebuilds insight snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
	Recalculate(ctx context.Context, userID string) (core.Snapshot, error)
}

// RefreshWorker recomputes insight documents out of band so interactive
// reads rarely pay the recompute cost.
type RefreshWorker struct {
	users    ActiveUserSource
	insights SnapshotSource
	cron     *cron.Cron
}

func NewRefreshWorker(users ActiveUserSource, insights SnapshotSource) *RefreshWorker {
	return &RefreshWorker{
		users:    users,
		insights: insights,
		cron:     cron.New(),
	}
}

// HandleTransactionEvent recomputes the affected user's documents after a
// ledger mutation reported over AMQP.
func (w *RefreshWorker) HandleTransactionEvent(msg *amqp.TransactionEventMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.InfoContext(ctx, "Processing transaction event",
		"user_id", msg.UserID,
		"action", msg.Action,
		"transaction_id", msg.TransactionID)

	if _, err := w.insights.Recalculate(ctx, msg.UserID); err != nil {
		return fmt.Errorf("recalculate insights for %s: %w", msg.UserID, err)
	}
	return nil
}

// Sweep walks every active user and reads their snapshot. Stale or missing
// documents are rebuilt by the read path itself; fresh ones cost one read.
func (w *RefreshWorker) Sweep(ctx context.Context) error {
	users, err := w.users.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}

	refreshed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		snap, err := w.insights.Snapshot(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "Sweep failed for user", "user_id", userID, "error", err)
			continue
		}
		if snap.Refreshed {
			refreshed++
		}
	}

	slog.InfoContext(ctx, "Sweep completed", "users", len(users), "refreshed", refreshed)
	return nil
}

// RegisterSweep schedules the periodic sweep. Accepts standard cron specs
// and descriptors like "@every 10m".
func (w *RefreshWorker) RegisterSweep(schedule string) error {
	_, err := w.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := w.Sweep(ctx); err != nil {
			slog.Error("Scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (w *RefreshWorker) Start() {
	w.cron.Start()
	slog.Info("Refresh worker scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (w *RefreshWorker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	slog.Info("Refresh worker scheduler stopped")
}
