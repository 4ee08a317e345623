package receivables

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
)

// installmentInterval is the fixed gap between consecutive due dates. Plain
// calendar days, no month-end clamping: January 1 plus 30 days is January 31,
// plus another 30 is March 2.
const installmentInterval = 30 * 24 * time.Hour

// PlannedInstallment is one slice of a split total before persistence.
type PlannedInstallment struct {
	Index   int             `json:"index"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"dueDate"`
}

// Plan is the full installment schedule for one total. Drift is the remainder
// the per-installment rounding leaves behind: total minus amount times count.
// It is reported, not redistributed, so every installment stays equal.
type Plan struct {
	Installments []PlannedInstallment `json:"installments"`
	Drift        decimal.Decimal      `json:"drift"`
}

// BuildPlan splits total into count equal installments starting at start.
// Each amount is the rounded quotient; dates advance in strict 30-day steps.
func BuildPlan(total decimal.Decimal, count int, start time.Time) (Plan, error) {
	if count < 1 {
		return Plan{}, common.NewValidationError("installment count must be at least 1", nil)
	}
	amount := billing.Round2(total.Div(decimal.NewFromInt(int64(count))))
	installments := make([]PlannedInstallment, count)
	for i := 0; i < count; i++ {
		installments[i] = PlannedInstallment{
			Index:   i + 1,
			Amount:  amount,
			DueDate: start.Add(time.Duration(i) * installmentInterval),
		}
	}
	drift := total.Sub(amount.Mul(decimal.NewFromInt(int64(count))))
	return Plan{Installments: installments, Drift: drift}, nil
}
