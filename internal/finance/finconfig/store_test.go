package finconfig

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
)

type memoryRepo struct {
	cfg   FinancialConfig
	saved bool
	loads int
	err   error
}

func (r *memoryRepo) Load(context.Context) (FinancialConfig, bool, error) {
	r.loads++
	return r.cfg, r.saved, r.err
}

func (r *memoryRepo) Save(_ context.Context, cfg FinancialConfig) error {
	r.cfg = cfg
	r.saved = true
	return nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var master = shared.Actor{ID: uuid.New(), Role: shared.RoleMaster}

func newStore(t *testing.T, repo *memoryRepo) (*Store, *memoryAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	audit := &memoryAudit{}
	store := NewStore(repo, NewCache(client, time.Minute), audit, nil)
	store.WithNow(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	return store, audit
}

func TestGetDefaultsWhenUnset(t *testing.T) {
	store, _ := newStore(t, &memoryRepo{})
	cfg, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.CreditoMaxColaborador.Equal(decimal.NewFromInt(5000)))
	require.True(t, cfg.JurosCreditoColab.Equal(decimal.RequireFromString("0.10")))
}

func TestGetServesFromCacheUntilSet(t *testing.T) {
	repo := &memoryRepo{}
	store, audit := newStore(t, repo)
	ctx := context.Background()

	_, err := store.Get(ctx)
	require.NoError(t, err)
	_, err = store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.loads)

	next := DefaultConfig()
	next.JurosCreditoColab = decimal.RequireFromString("0.12")
	_, err = store.Set(ctx, next, master)
	require.NoError(t, err)

	cfg, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, cfg.JurosCreditoColab.Equal(decimal.RequireFromString("0.12")))
	require.Equal(t, 2, repo.loads)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "finance_config.set", audit.logs[0].Action)
	require.Equal(t, master.ID, audit.logs[0].ActorID)
}

func TestSetRejectsOutOfRangeValues(t *testing.T) {
	repo := &memoryRepo{}
	store, audit := newStore(t, repo)

	bad := DefaultConfig()
	bad.JurosCreditoSubscritor = decimal.RequireFromString("1.5")
	_, err := store.Set(context.Background(), bad, master)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = DefaultConfig()
	bad.SaldoMinColaborador = decimal.NewFromInt(-1)
	_, err = store.Set(context.Background(), bad, master)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.False(t, repo.saved)
	require.Empty(t, audit.logs)
}

func TestGetFallsBackWithoutCache(t *testing.T) {
	repo := &memoryRepo{cfg: DefaultConfig(), saved: true}
	store := NewStore(repo, nil, nil, nil)
	_, err := store.Get(context.Background())
	require.NoError(t, err)

	repo.err = errors.New("db down")
	_, err = store.Get(context.Background())
	require.Error(t, err)
}

func TestLimitsByRole(t *testing.T) {
	cfg := DefaultConfig()
	collab, ok := cfg.Limits(shared.RoleCollaborator, decimal.NewFromInt(10))
	require.True(t, ok)
	require.True(t, collab.MaxCredit.Equal(decimal.NewFromInt(5000)))
	require.True(t, collab.MinBalance.Equal(decimal.NewFromInt(1000)))

	sub, ok := cfg.Limits(shared.RoleSubscriber, decimal.RequireFromString("1234.57"))
	require.True(t, ok)
	require.Equal(t, "617.29", sub.MaxCredit.StringFixed(2))
	require.True(t, sub.MinBalance.Equal(decimal.NewFromInt(500)))
	require.True(t, sub.InterestRate.Equal(decimal.RequireFromString("0.15")))

	_, ok = cfg.Limits(shared.RoleMaster, decimal.Zero)
	require.False(t, ok)
}

func TestHandlerPutRequiresMaster(t *testing.T) {
	store, _ := newStore(t, &memoryRepo{})
	router := chi.NewRouter()
	NewHandler(slogDiscard(), store, rbac.Middleware{}).MountRoutes(router)

	body := `{"credito_max_colaborador":"6000","saldo_min_colaborador":"1000","juros_credito_colab":"0.1",
"juros_credito_subscritor":"0.15","capital_min_ativacao":"500","percentagem_max_reserva":"0.5"}`
	put := func(role shared.Role) int {
		req := httptest.NewRequest(http.MethodPut, "/finance/config", bytes.NewBufferString(body))
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: uuid.New(), Role: role}))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusForbidden, put(shared.RoleCollaborator))
	require.Equal(t, http.StatusOK, put(shared.RoleMaster))

	cfg, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.CreditoMaxColaborador.Equal(decimal.NewFromInt(6000)))
}
