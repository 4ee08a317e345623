package receivables_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/receivables"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildPlanEvenSplit(t *testing.T) {
	t.Parallel()

	plan, err := receivables.BuildPlan(dec("3200"), 4, day(2025, time.January, 1))
	require.NoError(t, err)
	require.Len(t, plan.Installments, 4)

	for i, inst := range plan.Installments {
		require.Equal(t, i+1, inst.Index)
		require.True(t, dec("800").Equal(inst.Amount))
	}
	// 30 calendar days apart, never clamped to month boundaries.
	require.Equal(t, day(2025, time.January, 1), plan.Installments[0].DueDate)
	require.Equal(t, day(2025, time.January, 31), plan.Installments[1].DueDate)
	require.Equal(t, day(2025, time.March, 2), plan.Installments[2].DueDate)
	require.Equal(t, day(2025, time.April, 1), plan.Installments[3].DueDate)
	require.True(t, plan.Drift.IsZero())
}

func TestBuildPlanReportsRoundingDrift(t *testing.T) {
	t.Parallel()

	plan, err := receivables.BuildPlan(dec("100"), 3, day(2025, time.June, 1))
	require.NoError(t, err)

	// 100 / 3 rounds to 33.33 per installment. The missing cent stays in
	// Drift instead of being folded into any installment.
	for _, inst := range plan.Installments {
		require.True(t, dec("33.33").Equal(inst.Amount), inst.Amount.String())
	}
	require.True(t, dec("0.01").Equal(plan.Drift), plan.Drift.String())
}

func TestBuildPlanNegativeDrift(t *testing.T) {
	t.Parallel()

	// 200 / 3 rounds up to 66.67, so the installments overshoot by a cent.
	plan, err := receivables.BuildPlan(dec("200"), 3, day(2025, time.June, 1))
	require.NoError(t, err)
	require.True(t, dec("-0.01").Equal(plan.Drift), plan.Drift.String())
}

func TestBuildPlanSingleInstallment(t *testing.T) {
	t.Parallel()

	plan, err := receivables.BuildPlan(dec("99.99"), 1, day(2025, time.February, 28))
	require.NoError(t, err)
	require.Len(t, plan.Installments, 1)
	require.True(t, dec("99.99").Equal(plan.Installments[0].Amount))
	require.Equal(t, day(2025, time.February, 28), plan.Installments[0].DueDate)
	require.True(t, plan.Drift.IsZero())
}

func TestBuildPlanRejectsZeroCount(t *testing.T) {
	t.Parallel()

	_, err := receivables.BuildPlan(dec("100"), 0, day(2025, time.June, 1))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)

	_, err = receivables.BuildPlan(dec("100"), -2, day(2025, time.June, 1))
	require.ErrorAs(t, err, &appErr)
}
