package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jobready/authcore/internal/platform/httpx"
	"github.com/jobready/authcore/internal/shared"
)

// Handler exposes assignment endpoints under the roles route.
type Handler struct {
	logger    *slog.Logger
	ledger    *Ledger
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, ledger *Ledger, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, ledger: ledger, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermUsersView))
		r.Get("/stats", h.stats)
		r.Get("/user/{accountID}/roles", h.listAccountRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAssignmentsEdit))
		r.Post("/assign", h.assign)
		r.Delete("/assign/{assignmentID}", h.revoke)
	})
}

type assignRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	RoleID    int64  `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validation(err.Error()))
		return
	}
	var grantedBy *string
	if p, ok := PrincipalFromContext(r.Context()); ok && p.AccountID != "" {
		id := p.AccountID
		grantedBy = &id
	}
	assignment, err := h.ledger.Assign(r.Context(), req.AccountID, req.RoleID, grantedBy)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "role assigned", assignment)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("invalid assignment id"))
		return
	}
	assignment, err := h.ledger.Revoke(r.Context(), id)
	if err != nil {
		h.fail(w, "revoke role", err)
		return
	}
	httpx.OK(w, http.StatusOK, "role revoked", assignment)
}

func (h *Handler) listAccountRoles(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	assignments, err := h.ledger.ListByAccount(r.Context(), chi.URLParam(r, "accountID"), activeOnly)
	if err != nil {
		h.fail(w, "list account roles", err)
		return
	}
	if assignments == nil {
		assignments = []Assignment{}
	}
	httpx.OK(w, http.StatusOK, "assignments", assignments)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		h.fail(w, "role stats", err)
		return
	}
	httpx.OK(w, http.StatusOK, "role statistics", stats)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
