package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"finledger/internal/core"
	"finledger/internal/storage"
)

type fakeLedger struct {
	transactions []core.Transaction
	mutatedAt    time.Time
	hasMutations bool

	listErr     error
	mutationErr error
	listCalls   int
}

func (f *fakeLedger) ListForUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.transactions, nil
}

func (f *fakeLedger) LatestMutation(ctx context.Context, userID string) (time.Time, bool, error) {
	if f.mutationErr != nil {
		return time.Time{}, false, f.mutationErr
	}
	return f.mutatedAt, f.hasMutations, nil
}

type fakeStore struct {
	monthly    *core.MonthlySummary
	categories *core.CategoriesSummary
	risk       *core.RiskInsight

	getErr map[string]error // per document kind
	putErr map[string]error
	puts   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{getErr: map[string]error{}, putErr: map[string]error{}}
}

func (f *fakeStore) GetMonthly(ctx context.Context, userID string) (core.MonthlySummary, error) {
	if err := f.getErr["monthly"]; err != nil {
		return core.MonthlySummary{}, err
	}
	if f.monthly == nil {
		return core.MonthlySummary{}, storage.ErrNotFound
	}
	return *f.monthly, nil
}

func (f *fakeStore) GetCategories(ctx context.Context, userID string) (core.CategoriesSummary, error) {
	if err := f.getErr["categories"]; err != nil {
		return core.CategoriesSummary{}, err
	}
	if f.categories == nil {
		return core.CategoriesSummary{}, storage.ErrNotFound
	}
	return *f.categories, nil
}

func (f *fakeStore) GetRisk(ctx context.Context, userID string) (core.RiskInsight, error) {
	if err := f.getErr["risk"]; err != nil {
		return core.RiskInsight{}, err
	}
	if f.risk == nil {
		return core.RiskInsight{}, storage.ErrNotFound
	}
	return *f.risk, nil
}

func (f *fakeStore) PutMonthly(ctx context.Context, userID string, s core.MonthlySummary) error {
	if err := f.putErr["monthly"]; err != nil {
		return err
	}
	f.monthly = &s
	f.puts = append(f.puts, "monthly")
	return nil
}

func (f *fakeStore) PutCategories(ctx context.Context, userID string, s core.CategoriesSummary) error {
	if err := f.putErr["categories"]; err != nil {
		return err
	}
	f.categories = &s
	f.puts = append(f.puts, "categories")
	return nil
}

func (f *fakeStore) PutRisk(ctx context.Context, userID string, s core.RiskInsight) error {
	if err := f.putErr["risk"]; err != nil {
		return err
	}
	f.risk = &s
	f.puts = append(f.puts, "risk")
	return nil
}

func seedStore(store *fakeStore, computedAt time.Time) {
	store.monthly = &core.MonthlySummary{
		TotalIncome:  core.Money{Cents: 100000},
		TotalExpense: core.Money{Cents: 40000},
		NetBalance:   core.Money{Cents: 60000},
		ComputedAt:   computedAt,
	}
	store.categories = &core.CategoriesSummary{
		Expenses:   map[string]core.Money{"food": {Cents: 40000}},
		Incomes:    map[string]core.Money{"salary": {Cents: 100000}},
		ComputedAt: computedAt,
	}
	store.risk = &core.RiskInsight{Score: 40, Level: core.RiskLow, Message: "ok", ComputedAt: computedAt}
}

func newTestService(ledger *fakeLedger, store *fakeStore, now time.Time) *Service {
	s := NewService(ledger, store, DefaultTTL)
	s.now = func() time.Time { return now }
	return s
}

func TestSnapshotHitNoWrites(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{mutatedAt: now.Add(-time.Hour), hasMutations: true}
	store := newFakeStore()
	seedStore(store, now.Add(-5*time.Minute))
	s := newTestService(ledger, store, now)

	snap, err := s.Snapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if snap.Refreshed {
		t.Errorf("hit must report refreshed=false")
	}
	if len(store.puts) != 0 {
		t.Errorf("hit must not write, got puts %v", store.puts)
	}
	if ledger.listCalls != 0 {
		t.Errorf("hit must not list transactions")
	}
	if snap.Monthly.NetBalance.Cents != 60000 {
		t.Errorf("unexpected cached value: %+v", snap.Monthly)
	}
}

func TestSnapshotMissWhenAnyDocumentAbsent(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	for _, absent := range []string{"monthly", "categories", "risk"} {
		t.Run(absent, func(t *testing.T) {
			ledger := &fakeLedger{
				transactions: []core.Transaction{
					{Kind: core.Credit, Amount: core.Money{Cents: 100}},
				},
				mutatedAt:    now.Add(-time.Hour),
				hasMutations: true,
			}
			store := newFakeStore()
			seedStore(store, now.Add(-time.Minute))
			switch absent {
			case "monthly":
				store.monthly = nil
			case "categories":
				store.categories = nil
			case "risk":
				store.risk = nil
			}
			s := newTestService(ledger, store, now)

			snap, err := s.Snapshot(context.Background(), "user-1")
			if err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !snap.Refreshed {
				t.Fatalf("missing %s document must force a recompute", absent)
			}
			if len(store.puts) != 3 {
				t.Fatalf("recompute must persist all three documents, got %v", store.puts)
			}
		})
	}
}

func TestSnapshotTTLExpiry(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{mutatedAt: now.Add(-2 * time.Hour), hasMutations: true}
	store := newFakeStore()
	seedStore(store, now.Add(-DefaultTTL).Add(-time.Minute))
	s := newTestService(ledger, store, now)

	snap, err := s.Snapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !snap.Refreshed {
		t.Errorf("expired cache must recompute despite no new mutations")
	}
}

func TestSnapshotDirtyInvalidation(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	computedAt := now.Add(-5 * time.Minute)
	// Mutation newer than the cache but well inside the TTL window.
	ledger := &fakeLedger{mutatedAt: computedAt.Add(time.Minute), hasMutations: true}
	store := newFakeStore()
	seedStore(store, computedAt)
	s := newTestService(ledger, store, now)

	snap, err := s.Snapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !snap.Refreshed {
		t.Errorf("newer ledger mutation must invalidate a non-expired cache")
	}
}

func TestSnapshotReadErrorDegradesToMiss(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{hasMutations: false}
	store := newFakeStore()
	seedStore(store, now.Add(-time.Minute))
	store.getErr["categories"] = errors.New("connection reset")
	s := newTestService(ledger, store, now)

	snap, err := s.Snapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("read failure must recompute, not fail: %v", err)
	}
	if !snap.Refreshed {
		t.Errorf("read failure must degrade to a miss")
	}
}

func TestSnapshotMutationClockErrorTreatedAsDirty(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{mutationErr: errors.New("clock unavailable")}
	store := newFakeStore()
	seedStore(store, now.Add(-time.Minute))
	s := newTestService(ledger, store, now)

	snap, err := s.Snapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected recompute, got %v", err)
	}
	if !snap.Refreshed {
		t.Errorf("unavailable mutation clock must force a recompute")
	}
}

func TestRecalculateWriteErrorPropagates(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{}
	store := newFakeStore()
	store.putErr["risk"] = errors.New("disk full")
	s := newTestService(ledger, store, now)

	_, err := s.Recalculate(context.Background(), "user-1")
	if err == nil {
		t.Fatalf("write failure after compute must surface")
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error should wrap ErrStorageUnavailable, got %v", err)
	}
}

func TestRecalculateLedgerErrorPropagates(t *testing.T) {
	ledger := &fakeLedger{listErr: errors.New("ledger down")}
	s := newTestService(ledger, newFakeStore(), time.Now())

	if _, err := s.Recalculate(context.Background(), "user-1"); err == nil {
		t.Fatalf("ledger read failure must surface")
	}
}

func TestRecalculateAlwaysRecomputes(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{
		transactions: []core.Transaction{
			{Kind: core.Credit, Amount: core.Money{Cents: 100000}, Category: "salary"},
			{Kind: core.Debit, Amount: core.Money{Cents: 40000}, Category: "food"},
			{Kind: core.Debit, Amount: core.Money{Cents: 10000}},
		},
		mutatedAt:    now.Add(-time.Hour),
		hasMutations: true,
	}
	store := newFakeStore()
	seedStore(store, now.Add(-time.Second)) // perfectly fresh
	s := newTestService(ledger, store, now)

	snap, err := s.Recalculate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !snap.Refreshed {
		t.Errorf("recalculate must always report refreshed=true")
	}
	if snap.Monthly.TotalExpense.Cents != 50000 {
		t.Errorf("total expense = %d, want 50000", snap.Monthly.TotalExpense.Cents)
	}
	if got := snap.Categories.Expenses["food"].Cents; got != 40000 {
		t.Errorf("food expenses = %d, want 40000", got)
	}
	if _, blank := snap.Categories.Expenses[""]; blank {
		t.Errorf("blank category must not appear in the map")
	}

	// The triple shares one computedAt.
	if !snap.Monthly.ComputedAt.Equal(now) ||
		!snap.Categories.ComputedAt.Equal(now) ||
		!snap.Risk.ComputedAt.Equal(now) {
		t.Errorf("aggregates persisted with different computedAt values")
	}

	// A follow-up read is now a clean hit.
	ledger.mutatedAt = now.Add(-time.Hour)
	again, err := s.Snapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if again.Refreshed {
		t.Errorf("freshly recalculated cache should be a hit")
	}
}
