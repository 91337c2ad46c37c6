package credit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/platform/httpx"
	"github.com/odyssey-erp/malimina/internal/rbac"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// Handler wires credit endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency shared.IdempotencyKeys
	rbac        rbac.Middleware
	validate    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idempotency shared.IdempotencyKeys, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, rbac: rbac, validate: shared.NewValidator()}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireActor())
		r.Get("/finance/credits", h.list)
		r.Post("/finance/credits", h.request)
		r.Get("/finance/credits/{id}", h.get)
		r.Get("/finance/credits/{id}/history", h.history)
		r.Post("/finance/credits/{id}/repay", h.repay)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleMaster))
		r.Post("/finance/credits/{id}/approve", h.approve)
		r.Post("/finance/credits/{id}/reject", h.rejectRequest)
	})
}

type creditRequestBody struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
}

type approveBody struct {
	ApprovedAmount decimal.Decimal `json:"approved_amount" validate:"gt=0"`
}

type rejectBody struct {
	Note string `json:"note" validate:"max=500"`
}

type creditResponse struct {
	CreditRequest
	TotalDue *decimal.Decimal `json:"total_due,omitempty"`
}

func respond(req CreditRequest) creditResponse {
	out := creditResponse{CreditRequest: req}
	if req.ApprovedAmount.Valid {
		due := req.TotalDue()
		out.TotalDue = &due
	}
	return out
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var body creditRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if body.AccountID == uuid.Nil {
		body.AccountID = actor.ID
	}
	var req CreditRequest
	err := httpx.Idempotent(r, h.idempotency, "credit.request", func() error {
		var err error
		req, err = h.service.RequestCredit(r.Context(), body.AccountID, body.Amount, actor)
		return err
	})
	if err != nil {
		h.fail(w, "request credit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, respond(req))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	accountID := uuid.Nil
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.Validation("invalid account_id %q", raw))
			return
		}
		accountID = id
	}
	reqs, err := h.service.ListCredits(r.Context(), accountID, actor)
	if err != nil {
		h.fail(w, "list credits", err)
		return
	}
	out := make([]creditResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, respond(req))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.GetCredit(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "get credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(req))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	logs, err := h.service.History(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "credit history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": logs})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body approveBody
	if !h.decode(w, r, &body) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.ApproveCredit(r.Context(), id, body.ApprovedAmount, actor)
	if err != nil {
		h.fail(w, "approve credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(req))
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body rejectBody
	if r.ContentLength != 0 && !h.decode(w, r, &body) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.RejectCredit(r.Context(), id, body.Note, actor)
	if err != nil {
		h.fail(w, "reject credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(req))
}

func (h *Handler) repay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	var req CreditRequest
	err := httpx.Idempotent(r, h.idempotency, "credit.repay", func() error {
		var err error
		req, err = h.service.RepayCredit(r.Context(), id, actor)
		return err
	})
	if err != nil {
		h.fail(w, "repay credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(req))
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
		h.logger.Warn("credit request failed", slog.String("op", op), slog.Any("error", err))
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
