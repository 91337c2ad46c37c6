package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/platform/httpx"
	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// Handler wires wallet, account and Master entry endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency shared.IdempotencyKeys
	rbac        rbac.Middleware
	validate    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idempotency shared.IdempotencyKeys, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		rbac:        rbac,
		validate:    shared.NewValidator(),
	}
}

// MountRoutes registers HTTP routes for the ledger.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireActor())
		r.Get("/finance/wallets/{id}", h.getWallet)
		r.Get("/finance/wallets/{id}/entries", h.listEntries)
		r.Post("/finance/wallets/{id}/entries", h.postEntry)
		r.Post("/finance/wallets/{id}/reserve", h.reserve)
		r.Post("/finance/wallets/{id}/release", h.release)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleMaster))
		r.Post("/finance/accounts", h.registerAccount)
		r.Post("/finance/accounts/{id}/activate", h.activateAccount)
		r.Post("/finance/accounts/{id}/block", h.blockAccount)
		r.Get("/finance/master/entries", h.listMasterEntries)
		r.Post("/finance/master/entries", h.postMasterEntry)
	})
}

type postEntryRequest struct {
	Type        EntryType       `json:"type" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Category    string          `json:"category" validate:"max=100"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

type registerAccountRequest struct {
	Name string      `json:"name" validate:"required,max=200"`
	Role shared.Role `json:"role" validate:"required,oneof=collaborator subscriber"`
}

type activateRequest struct {
	InitialCapital decimal.Decimal `json:"initial_capital" validate:"gte=0"`
}

type masterEntryRequest struct {
	Type        EntryType       `json:"type" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Category    string          `json:"category" validate:"required,max=100"`
}

type walletResponse struct {
	Wallet
	Balance Balance `json:"balance"`
}

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, walletResponse{Wallet: wallet, Balance: wallet.Balance()})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	entries, page, err := h.service.ListEntries(r.Context(), wallet.ID, shared.PaginationFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, "list entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "pagination": page})
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	var req postEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	var entry LedgerEntry
	err := httpx.Idempotent(r, h.idempotency, "ledger.entry", func() error {
		var err error
		entry, err = h.service.PostEntry(r.Context(), PostInput{
			WalletID:    wallet.ID,
			Type:        req.Type,
			Amount:      req.Amount,
			Description: req.Description,
			Category:    req.Category,
		}, actor)
		return err
	})
	if err != nil {
		h.fail(w, "post entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, "ledger.reserve", h.service.ReserveFunds)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, "ledger.release", h.service.ReleaseFunds)
}

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, module string, op func(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Balance, error)) {
	wallet, ok := h.ownedWallet(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	var balance Balance
	err := httpx.Idempotent(r, h.idempotency, module, func() error {
		var err error
		balance, err = op(r.Context(), wallet.ID, req.Amount)
		return err
	})
	if err != nil {
		h.fail(w, module, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) registerAccount(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.RegisterAccount(r.Context(), req.Name, req.Role)
	if err != nil {
		h.fail(w, "register account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) activateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	var (
		account Account
		wallet  Wallet
	)
	err := httpx.Idempotent(r, h.idempotency, "ledger.activate", func() error {
		var err error
		account, wallet, err = h.service.ActivateAccount(r.Context(), id, req.InitialCapital, actor)
		return err
	})
	if err != nil {
		h.fail(w, "activate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": account, "wallet": wallet})
}

func (h *Handler) blockAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	account, err := h.service.BlockAccount(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "block account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) postMasterEntry(w http.ResponseWriter, r *http.Request) {
	var req masterEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	var entry LedgerEntry
	err := httpx.Idempotent(r, h.idempotency, "ledger.master_entry", func() error {
		var err error
		entry, err = h.service.PostMasterEntry(r.Context(), MasterInput{
			Type:        req.Type,
			Amount:      req.Amount,
			Description: req.Description,
			Category:    req.Category,
		}, actor)
		return err
	})
	if err != nil {
		h.fail(w, "post master entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listMasterEntries(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.ListMasterEntries(r.Context(), rng)
	if err != nil {
		h.fail(w, "list master entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ownedWallet loads the wallet in the path. Only Master and the owning
// account may see or move its funds.
func (h *Handler) ownedWallet(w http.ResponseWriter, r *http.Request) (Wallet, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return Wallet{}, false
	}
	wallet, err := h.service.GetWallet(r.Context(), id)
	if err != nil {
		h.fail(w, "get wallet", err)
		return Wallet{}, false
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if !actor.IsMaster() && actor.ID != wallet.AccountID {
		httpx.RespondError(w, shared.ErrForbidden)
		return Wallet{}, false
	}
	return wallet, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		httpx.RespondError(w, shared.Validation("%v", err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn("ledger request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.Validation("invalid id %q", chi.URLParam(r, "id")))
		return uuid.Nil, false
	}
	return id, true
}

// ParseDateRange reads RFC3339 or YYYY-MM-DD bounds. A date-only "to" covers
// the whole day.
func ParseDateRange(from, to string) (DateRange, error) {
	var (
		rng DateRange
		err error
	)
	if from != "" {
		if rng.From, _, err = parseBound(from); err != nil {
			return DateRange{}, shared.Validation("invalid from %q", from)
		}
	}
	if to != "" {
		var dateOnly bool
		if rng.To, dateOnly, err = parseBound(to); err != nil {
			return DateRange{}, shared.Validation("invalid to %q", to)
		}
		if dateOnly {
			rng.To = rng.To.AddDate(0, 0, 1)
		}
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.From.Before(rng.To) {
		return DateRange{}, shared.Validation("from must be before to")
	}
	return rng, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t.UTC(), false, err
}
