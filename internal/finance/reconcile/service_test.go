package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
)

type stubMaster struct {
	entries []ledger.LedgerEntry
	calls   atomic.Int32
}

func (s *stubMaster) ListMasterEntries(context.Context, ledger.DateRange) ([]ledger.LedgerEntry, error) {
	s.calls.Add(1)
	return s.entries, nil
}

type stubInvoices struct {
	invoices []PaidInvoice
	err      error
}

func (s stubInvoices) PaidInvoices(context.Context) ([]PaidInvoice, error) {
	return s.invoices, s.err
}

type stubOrders struct {
	orders []PaidWorkOrder
}

func (s stubOrders) PaidWorkOrders(context.Context) ([]PaidWorkOrder, error) {
	return s.orders, nil
}

func scenarioService() (*Service, *stubMaster) {
	master := &stubMaster{}
	svc := NewService(master,
		stubInvoices{invoices: []PaidInvoice{
			{ID: "1", Total: dec("500"), PaymentDate: at(1)},
			{ID: "2", Total: dec("700"), PaymentDate: at(2)},
		}},
		stubOrders{orders: []PaidWorkOrder{{ID: "9", CollaboratorValue: dec("300"), PaymentDate: at(3)}}},
		nil)
	return svc, master
}

func TestGetUnifiedTransactions(t *testing.T) {
	svc, master := scenarioService()
	ctx := context.Background()

	first, err := svc.GetUnifiedTransactions(ctx, ledger.DateRange{})
	require.NoError(t, err)
	requireTotals(t, first.Partitions[SubSystemGeneral], "1200", "300", "900")

	second, err := svc.GetUnifiedTransactions(ctx, ledger.DateRange{})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 2, master.calls.Load(), "reports are recomputed on every call")
}

func TestGetUnifiedTransactionsPropagatesFeedError(t *testing.T) {
	svc := NewService(&stubMaster{}, stubInvoices{err: errors.New("ar offline")}, stubOrders{}, nil)
	_, err := svc.GetUnifiedTransactions(context.Background(), ledger.DateRange{})
	require.ErrorContains(t, err, "paid invoices")
}

func TestTransactionsHandler(t *testing.T) {
	svc, _ := scenarioService()
	router := chi.NewRouter()
	NewHandler(nil, svc, rbac.Middleware{}).MountRoutes(router)

	call := func(role shared.Role, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/finance/reports/transactions"+query, nil)
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: uuid.New(), Role: role}))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(shared.RoleMaster, "?from=2025-05-01&to=2025-05-02")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sub_system":"general"`)
	require.Contains(t, rec.Body.String(), `"source_id":"1"`)
	require.NotContains(t, rec.Body.String(), `"source_id":"9"`)

	require.Equal(t, http.StatusForbidden, call(shared.RoleSubscriber, "").Code)
	require.Equal(t, http.StatusBadRequest, call(shared.RoleMaster, "?from=soon").Code)
}
