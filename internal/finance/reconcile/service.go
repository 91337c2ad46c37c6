package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
)

// MasterSource lists Master-level ledger entries.
type MasterSource interface {
	ListMasterEntries(ctx context.Context, r ledger.DateRange) ([]ledger.LedgerEntry, error)
}

// InvoiceFeed lists invoices currently paid.
type InvoiceFeed interface {
	PaidInvoices(ctx context.Context) ([]PaidInvoice, error)
}

// WorkOrderFeed lists work orders currently paid.
type WorkOrderFeed interface {
	PaidWorkOrders(ctx context.Context) ([]PaidWorkOrder, error)
}

// Service computes the unified report on demand.
type Service struct {
	master   MasterSource
	invoices InvoiceFeed
	orders   WorkOrderFeed
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService constructs the reconciliation service.
func NewService(master MasterSource, invoices InvoiceFeed, orders WorkOrderFeed, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{master: master, invoices: invoices, orders: orders, logger: logger}
}

// GetUnifiedTransactions recomputes the report for r. Identical calls in
// flight at the same time share one computation.
func (s *Service) GetUnifiedTransactions(ctx context.Context, r ledger.DateRange) (Report, error) {
	key := r.From.Format(time.RFC3339Nano) + "|" + r.To.Format(time.RFC3339Nano)
	ch := s.group.DoChan(key, func() (any, error) {
		start := time.Now()
		snap, err := s.Snapshot(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		report := Build(snap, r)
		s.logger.Debug("unified report built",
			slog.Int("transactions", len(report.Transactions)),
			slog.Duration("took", time.Since(start)))
		return report, nil
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

// Snapshot fetches the three sources concurrently.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.master.ListMasterEntries(ctx, ledger.DateRange{})
		if err != nil {
			return fmt.Errorf("reconcile: master entries: %w", err)
		}
		snap.Master = entries
		return nil
	})
	g.Go(func() error {
		invoices, err := s.invoices.PaidInvoices(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: paid invoices: %w", err)
		}
		snap.Invoices = invoices
		return nil
	})
	g.Go(func() error {
		orders, err := s.orders.PaidWorkOrders(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: paid work orders: %w", err)
		}
		snap.WorkOrders = orders
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
