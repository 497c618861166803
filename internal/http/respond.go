package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"finledger/internal/core"
	"finledger/internal/insights"
	"finledger/internal/storage"
)

type transactionResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amountCents"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
}

type monthlyResponse struct {
	TotalIncome  string    `json:"totalIncome"`
	TotalExpense string    `json:"totalExpense"`
	NetBalance   string    `json:"netBalance"`
	ComputedAt   time.Time `json:"computedAt"`
}

type categoriesResponse struct {
	Expenses   map[string]string `json:"expenses"`
	Incomes    map[string]string `json:"incomes"`
	ComputedAt time.Time         `json:"computedAt"`
}

type riskResponse struct {
	Score      int       `json:"score"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	ComputedAt time.Time `json:"computedAt"`
}

type snapshotResponse struct {
	Monthly    monthlyResponse    `json:"monthly"`
	Categories categoriesResponse `json:"categories"`
	Risk       riskResponse       `json:"risk"`
	Refreshed  bool               `json:"refreshed"`
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Kind:        string(tx.Kind),
		Amount:      core.FormatCents(tx.Amount.Cents),
		AmountCents: tx.Amount.Cents,
		Title:       tx.Title,
		Description: tx.Description,
		Category:    tx.Category,
		Date:        tx.Date.String(),
		CreatedAt:   tx.CreatedAt,
	}
}

// Amounts are rendered as decimal strings: JSON numbers would push the
// values through float64 on many clients.
func toSnapshotResponse(snap core.Snapshot) snapshotResponse {
	return snapshotResponse{
		Monthly: monthlyResponse{
			TotalIncome:  core.FormatCents(snap.Monthly.TotalIncome.Cents),
			TotalExpense: core.FormatCents(snap.Monthly.TotalExpense.Cents),
			NetBalance:   core.FormatCents(snap.Monthly.NetBalance.Cents),
			ComputedAt:   snap.Monthly.ComputedAt,
		},
		Categories: categoriesResponse{
			Expenses:   formatCategoryMap(snap.Categories.Expenses),
			Incomes:    formatCategoryMap(snap.Categories.Incomes),
			ComputedAt: snap.Categories.ComputedAt,
		},
		Risk: riskResponse{
			Score:      snap.Risk.Score,
			Level:      string(snap.Risk.Level),
			Message:    snap.Risk.Message,
			ComputedAt: snap.Risk.ComputedAt,
		},
		Refreshed: snap.Refreshed,
	}
}

func formatCategoryMap(m map[string]core.Money) map[string]string {
	out := make(map[string]string, len(m))
	for name, amount := range m {
		out[name] = core.FormatCents(amount.Cents)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, insights.ErrStorageUnavailable):
		slog.ErrorContext(r.Context(), "Storage unavailable", "error", err, "url", r.URL.Path)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable, retry later"})
	case isValidationError(err):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidKind) ||
		errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrEmptyTitle) ||
		errors.Is(err, core.ErrEmptyUserID)
}
