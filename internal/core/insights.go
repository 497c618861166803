package core

import "time"

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type (
	RiskLevel string

	// MonthlySummary holds the income/expense totals derived from a user's
	// full transaction list. Fully replaced on every recompute.
	MonthlySummary struct {
		TotalIncome  Money     `json:"totalIncomeCents"`
		TotalExpense Money     `json:"totalExpenseCents"`
		NetBalance   Money     `json:"netBalanceCents"`
		ComputedAt   time.Time `json:"computedAt"`
	}

	// CategoriesSummary maps category names to summed amounts. Transactions
	// with a blank category are excluded from the maps but still counted in
	// the monthly totals.
	CategoriesSummary struct {
		Expenses   map[string]Money `json:"expenses"`
		Incomes    map[string]Money `json:"incomes"`
		ComputedAt time.Time        `json:"computedAt"`
	}

	// RiskInsight scores spending against income on a 0-100 scale.
	RiskInsight struct {
		Score      int       `json:"score"`
		Level      RiskLevel `json:"level"`
		Message    string    `json:"message"`
		ComputedAt time.Time `json:"computedAt"`
	}

	// Snapshot is the triple returned to callers. Refreshed reports whether
	// serving this snapshot triggered a recomputation.
	Snapshot struct {
		Monthly    MonthlySummary
		Categories CategoriesSummary
		Risk       RiskInsight
		Refreshed  bool
	}
)
