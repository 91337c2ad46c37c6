package ar

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/malimina/internal/finance/reconcile"
)

// RepositoryPort defines data access methods for AR.
type RepositoryPort interface {
	ListByStatus(ctx context.Context, status InvoiceStatus) ([]Invoice, error)
}

// Feed adapts paid invoices to the reconciliation input.
type Feed struct {
	repo RepositoryPort
}

// NewFeed builds Feed instance.
func NewFeed(repo RepositoryPort) *Feed {
	return &Feed{repo: repo}
}

// PaidInvoices returns every invoice currently paid.
func (f *Feed) PaidInvoices(ctx context.Context) ([]reconcile.PaidInvoice, error) {
	invoices, err := f.repo.ListByStatus(ctx, StatusPaid)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.PaidInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status != StatusPaid {
			continue
		}
		out = append(out, reconcile.PaidInvoice{
			ID:          strconv.FormatInt(inv.ID, 10),
			Number:      inv.Number,
			Total:       inv.Total,
			PaymentDate: inv.PaidAt,
			UpdatedAt:   inv.UpdatedAt,
		})
	}
	return out, nil
}
