package receivables

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCollectionRate(t *testing.T) {
	t.Parallel()

	require.Zero(t, collectionRate(Summary{}), "no receivables means no rate")

	sum := Summary{
		TotalPaid:    decimal.RequireFromString("750"),
		TotalOpen:    decimal.RequireFromString("200"),
		TotalOverdue: decimal.RequireFromString("50"),
	}
	require.InDelta(t, 0.75, collectionRate(sum), 0.0001)

	allPaid := Summary{TotalPaid: decimal.RequireFromString("120")}
	require.InDelta(t, 1.0, collectionRate(allPaid), 0.0001)
}
