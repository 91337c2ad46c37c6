package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDirectionOf(t *testing.T) {
	cases := []struct {
		typ    EntryType
		master bool
		want   Direction
	}{
		{EntryMissionPayment, false, DirectionCredit},
		{EntryInvoicePayment, false, DirectionCredit},
		{EntryFinancingInflow, false, DirectionCredit},
		{EntryWithdrawal, false, DirectionDebit},
		{EntryTransferOut, false, DirectionDebit},
		{EntryGroupContribution, false, DirectionDebit},
		{EntryCreditRepayment, false, DirectionDebit},
		{EntryCreditRepayment, true, DirectionCredit},
		{EntryWithdrawal, true, DirectionDebit},
	}
	for _, tc := range cases {
		got, err := DirectionOf(tc.typ, tc.master)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%s master=%v", tc.typ, tc.master)
	}
	_, err := DirectionOf("bonus", false)
	require.ErrorIs(t, err, ErrUnknownEntryType)
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	require.Equal(t, "2.68", Round2(decimal.RequireFromString("2.675")).StringFixed(2))
	require.Equal(t, "-2.68", Round2(decimal.RequireFromString("-2.675")).StringFixed(2))
	require.Equal(t, "2.67", Round2(decimal.RequireFromString("2.6749")).StringFixed(2))
}

func TestParseDateRange(t *testing.T) {
	rng, err := ParseDateRange("2025-01-01", "2025-01-31")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), rng.To)
	require.True(t, rng.Contains(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)))
	require.False(t, rng.Contains(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	open, err := ParseDateRange("", "")
	require.NoError(t, err)
	require.True(t, open.Contains(time.Now()))

	_, err = ParseDateRange("2025-02-01", "2025-01-01")
	require.Error(t, err)
	_, err = ParseDateRange("yesterday", "")
	require.Error(t, err)
}
