// Package storage persists transactions and the per-user insight documents
// in SQLite. It backs both the ledger-source and aggregate-store ports of
// the insights service.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"finledger/internal/core"

	_ "modernc.org/sqlite"
)

// Insight document kinds, one row each per user.
const (
	docMonthly    = "monthly"
	docCategories = "categories"
	docRisk       = "risk"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTransaction inserts a new transaction, assigning an ID and CreatedAt
// when absent, and bumps the user's mutation clock.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(id, user_id, kind, amount_cents, title, description, category, event_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, string(tx.Kind), tx.Amount.Cents, tx.Title, tx.Description, tx.Category,
		tx.Date.String(), tx.CreatedAt, now)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := r.touchLedgerClock(ctx, tx.UserID, now); err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", tx.ID,
		"user_id", tx.UserID,
		"kind", tx.Kind,
		"amount_cents", tx.Amount.Cents)

	return tx, nil
}

// UpdateTransaction replaces every mutable field of an existing transaction.
// CreatedAt is preserved; the mutation clock moves forward.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET kind = ?, amount_cents = ?, title = ?, description = ?, category = ?, event_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		string(tx.Kind), tx.Amount.Cents, tx.Title, tx.Description, tx.Category, tx.Date.String(), now,
		tx.ID, tx.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction rows affected: %w", err)
	}
	if rows == 0 {
		return core.Transaction{}, ErrNotFound
	}

	if err := r.touchLedgerClock(ctx, tx.UserID, now); err != nil {
		return core.Transaction{}, err
	}

	return r.GetTransaction(ctx, tx.UserID, tx.ID)
}

// DeleteTransaction removes a transaction; returns ErrNotFound when no row
// matches.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return r.touchLedgerClock(ctx, userID, time.Now().UTC())
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, amount_cents, title, description, category, event_date, created_at
		FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// ListForUser returns the user's complete transaction list, newest first.
func (r *SQLiteRepository) ListForUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount_cents, title, description, category, event_date, created_at
		FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}

// LatestMutation reports when the user's ledger last changed. ok is false
// for users with no recorded mutations.
func (r *SQLiteRepository) LatestMutation(ctx context.Context, userID string) (time.Time, bool, error) {
	var mutatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT mutated_at FROM ledger_clock WHERE user_id = ?`, userID).Scan(&mutatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read ledger clock: %w", err)
	}
	return mutatedAt, true, nil
}

// ActiveUsers returns every user with at least one recorded ledger mutation.
func (r *SQLiteRepository) ActiveUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM ledger_clock ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active users: %w", err)
	}
	return users, nil
}

func (r *SQLiteRepository) touchLedgerClock(ctx context.Context, userID string, mutatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_clock(user_id, mutated_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET mutated_at = excluded.mutated_at`,
		userID, mutatedAt)
	if err != nil {
		return fmt.Errorf("touch ledger clock: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetMonthly(ctx context.Context, userID string) (core.MonthlySummary, error) {
	var s core.MonthlySummary
	if err := r.getDocument(ctx, userID, docMonthly, &s); err != nil {
		return core.MonthlySummary{}, err
	}
	return s, nil
}

func (r *SQLiteRepository) GetCategories(ctx context.Context, userID string) (core.CategoriesSummary, error) {
	var s core.CategoriesSummary
	if err := r.getDocument(ctx, userID, docCategories, &s); err != nil {
		return core.CategoriesSummary{}, err
	}
	return s, nil
}

func (r *SQLiteRepository) GetRisk(ctx context.Context, userID string) (core.RiskInsight, error) {
	var s core.RiskInsight
	if err := r.getDocument(ctx, userID, docRisk, &s); err != nil {
		return core.RiskInsight{}, err
	}
	return s, nil
}

func (r *SQLiteRepository) PutMonthly(ctx context.Context, userID string, s core.MonthlySummary) error {
	return r.putDocument(ctx, userID, docMonthly, s, s.ComputedAt)
}

func (r *SQLiteRepository) PutCategories(ctx context.Context, userID string, s core.CategoriesSummary) error {
	return r.putDocument(ctx, userID, docCategories, s, s.ComputedAt)
}

func (r *SQLiteRepository) PutRisk(ctx context.Context, userID string, s core.RiskInsight) error {
	return r.putDocument(ctx, userID, docRisk, s, s.ComputedAt)
}

// getDocument reads one insight document into dest. Absent rows map to
// ErrNotFound, which the insights service treats as a cache miss.
func (r *SQLiteRepository) getDocument(ctx context.Context, userID, kind string, dest any) error {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM insight_documents WHERE user_id = ? AND kind = ?`,
		userID, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read insight document %s: %w", kind, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode insight document %s: %w", kind, err)
	}
	return nil
}

// putDocument upserts one insight document. Amounts travel as integer cents
// inside the JSON payload, never as floats.
func (r *SQLiteRepository) putDocument(ctx context.Context, userID, kind string, doc any, computedAt time.Time) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode insight document %s: %w", kind, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO insight_documents(user_id, kind, payload, computed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kind) DO UPDATE SET payload = excluded.payload, computed_at = excluded.computed_at`,
		userID, kind, string(payload), computedAt)
	if err != nil {
		return fmt.Errorf("write insight document %s: %w", kind, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx        core.Transaction
		kind      string
		cents     int64
		eventDate string
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &kind, &cents, &tx.Title, &tx.Description, &tx.Category, &eventDate, &tx.CreatedAt); err != nil {
		return core.Transaction{}, err
	}
	tx.Kind = core.TransactionKind(kind)
	tx.Amount = core.Money{Cents: cents}
	date, err := core.ParseDate(eventDate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse event date %q: %w", eventDate, err)
	}
	tx.Date = date
	return tx, nil
}
