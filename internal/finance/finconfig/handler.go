package finconfig

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/malimina/internal/platform/httpx"
	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// Handler exposes the configuration endpoints.
type Handler struct {
	logger *slog.Logger
	store  *Store
	rbac   rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, store *Store, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, store: store, rbac: rbac}
}

// MountRoutes registers config routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireActor()).Get("/finance/config", h.get)
	r.With(h.rbac.RequireRole(shared.RoleMaster)).Put("/finance/config", h.put)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("get financial config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var cfg FinancialConfig
	if err := httpx.DecodeJSON(r, &cfg); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	saved, err := h.store.Set(r.Context(), cfg, actor)
	if err != nil {
		h.logger.Warn("set financial config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("financial config replaced", slog.String("actor", actor.ID.String()))
	httpx.JSON(w, http.StatusOK, saved)
}
