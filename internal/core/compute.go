package core

import "time"

// Messages attached to the risk insight, one per outcome.
const (
	msgRiskNoActivity = "Aún no hay suficientes movimientos para evaluar riesgos"
	msgRiskHigh       = "Tu nivel de gasto es alto respecto a tus ingresos"
	msgRiskMedium     = "Tus gastos están creciendo, revisa tus categorías principales"
	msgRiskLow        = "Tus gastos se mantienen bajo control"
)

// oneUnitCents is the income floor used in the utilization denominator.
const oneUnitCents = 100

// Compute derives the three insight aggregates from a transaction list in a
// single pass. It is pure and deterministic: no I/O, no clock reads (now is
// injected), and exact cent arithmetic throughout. An empty list yields
// zero-valued totals and the fixed low-activity risk insight.
//
// All three aggregates share the same ComputedAt so a persisted triple is
// never internally stale.
func Compute(transactions []Transaction, now time.Time) (MonthlySummary, CategoriesSummary, RiskInsight) {
	var income, expense Money
	expensesByCategory := make(map[string]Money)
	incomesByCategory := make(map[string]Money)

	for _, tx := range transactions {
		switch tx.Kind {
		case Credit:
			income = income.Add(tx.Amount)
			if tx.Category != "" {
				incomesByCategory[tx.Category] = incomesByCategory[tx.Category].Add(tx.Amount)
			}
		case Debit:
			expense = expense.Add(tx.Amount)
			if tx.Category != "" {
				expensesByCategory[tx.Category] = expensesByCategory[tx.Category].Add(tx.Amount)
			}
		}
	}

	monthly := MonthlySummary{
		TotalIncome:  income,
		TotalExpense: expense,
		NetBalance:   income.Sub(expense),
		ComputedAt:   now,
	}
	categories := CategoriesSummary{
		Expenses:   expensesByCategory,
		Incomes:    incomesByCategory,
		ComputedAt: now,
	}
	return monthly, categories, buildRiskInsight(income, expense, now)
}

// buildRiskInsight scores utilization = expense / max(income, one unit),
// clamped to [0,100] with half-up rounding to an integer percentage.
func buildRiskInsight(income, expense Money, now time.Time) RiskInsight {
	if income.Cents == 0 && expense.Cents == 0 {
		return RiskInsight{
			Score:      20,
			Level:      RiskLow,
			Message:    msgRiskNoActivity,
			ComputedAt: now,
		}
	}

	denom := income.Cents
	if denom < oneUnitCents {
		denom = oneUnitCents
	}
	score := (expense.Cents*100 + denom/2) / denom
	if score > 100 {
		score = 100
	}

	var level RiskLevel
	var message string
	switch {
	case score >= 80:
		level = RiskHigh
		message = msgRiskHigh
	case score >= 50:
		level = RiskMedium
		message = msgRiskMedium
	default:
		level = RiskLow
		message = msgRiskLow
	}

	return RiskInsight{
		Score:      int(score),
		Level:      level,
		Message:    message,
		ComputedAt: now,
	}
}
