package ar

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryARRepo struct {
	invoices []Invoice
}

func (r *memoryARRepo) ListByStatus(_ context.Context, status InvoiceStatus) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.Status == status {
			out = append(out, inv)
		}
	}
	return out, nil
}

func TestPaidInvoicesFeed(t *testing.T) {
	paidAt := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 2, 4, 8, 0, 0, 0, time.UTC)
	repo := &memoryARRepo{invoices: []Invoice{
		{ID: 1, Number: "INV-001", Total: decimal.NewFromInt(500), Status: StatusPaid, PaidAt: &paidAt, UpdatedAt: updated},
		{ID: 2, Number: "INV-002", Total: decimal.NewFromInt(700), Status: StatusPaid, UpdatedAt: updated},
		{ID: 3, Number: "INV-003", Total: decimal.NewFromInt(900), Status: StatusPosted, UpdatedAt: updated},
	}}

	feed, err := NewFeed(repo).PaidInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, "1", feed[0].ID)
	require.Equal(t, paidAt, *feed[0].PaymentDate)
	require.Nil(t, feed[1].PaymentDate)
	require.Equal(t, updated, feed[1].UpdatedAt)
	require.Equal(t, "INV-002", feed[1].Number)
}
