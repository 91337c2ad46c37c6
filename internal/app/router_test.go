package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/internal/finance/finconfig"
	"github.com/odyssey-erp/malimina/internal/finance/ledger"
	"github.com/odyssey-erp/malimina/internal/observability"
	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
	"github.com/odyssey-erp/malimina/internal/testing/memstore"
	"github.com/odyssey-erp/malimina/jobs"
)

type emptyInspector struct{}

func (emptyInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return nil, asynq.ErrQueueNotFound
}

func (emptyInspector) ListArchivedTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func testRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	cfg := &memstore.Config{Cfg: finconfig.DefaultConfig()}
	rbacMW := rbac.Middleware{Logger: logger}
	ledgerSvc := ledger.NewService(store.Ledger(), cfg, nil, logger)

	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{RateLimitPerMin: 1000},
		RBACMiddleware: rbacMW,
		LedgerHandler:  ledger.NewHandler(logger, ledgerSvc, nil, rbacMW),
		JobHandler:     jobs.NewHandler(emptyInspector{}, logger),
		Metrics:        observability.NewMetrics(),
	})
	return router, store
}

func do(router http.Handler, method, path, id, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if id != "" {
		req.Header.Set(HeaderActorID, id)
	}
	if role != "" {
		req.Header.Set(HeaderActorRole, role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := testRouter(t)

	rec := do(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "malimina_http_requests_total")
}

func TestRouterActorHeaders(t *testing.T) {
	router, store := testRouter(t)
	owner := uuid.New()
	wallet := ledger.Wallet{ID: uuid.New(), AccountID: owner, Available: decimal.RequireFromString("100"), Reserved: decimal.Zero}
	store.Seed(ledger.Account{ID: owner, Role: shared.RoleCollaborator, Status: ledger.AccountActive}, wallet)

	path := "/finance/wallets/" + wallet.ID.String()
	require.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, path, "", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, path, "not-a-uuid", "master").Code)
	require.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, path, owner.String(), "admin").Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodGet, path, owner.String(), "collaborator").Code)
	require.Equal(t, http.StatusForbidden, do(router, http.MethodGet, path, uuid.NewString(), "subscriber").Code)
}

func TestRouterJobsRequireMaster(t *testing.T) {
	router, _ := testRouter(t)
	require.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/jobs/health", uuid.NewString(), "subscriber").Code)
	require.Equal(t, http.StatusOK, do(router, http.MethodGet, "/jobs/health", uuid.NewString(), "master").Code)
}

func TestActorFromHeadersStoresActor(t *testing.T) {
	id := uuid.New()
	var got shared.Actor
	handler := ActorFromHeaders(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.ActorFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	req.Header.Set(HeaderActorID, id.String())
	req.Header.Set(HeaderActorRole, "master")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, shared.Actor{ID: id, Role: shared.RoleMaster}, got)
}
