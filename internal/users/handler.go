package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jobready/authcore/internal/platform/httpx"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

// Handler manages account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Patch("/me", h.updateMe)
	r.Post("/me/password", h.changePassword)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listAccounts)
		r.Get("/{accountID}", h.getAccount)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Patch("/{accountID}/activate", h.setActive(true))
		r.Patch("/{accountID}/deactivate", h.setActive(false))
		r.Patch("/{accountID}/verify", h.verify)
		r.Delete("/{accountID}", h.deleteAccount)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSuperuser())
		r.Patch("/{accountID}/superuser", h.setSuperuser)
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required", "token_missing")
		return
	}
	account, err := h.service.Get(r.Context(), principal.AccountID)
	if err != nil {
		h.fail(w, "get current account", err)
		return
	}
	httpx.OK(w, http.StatusOK, "account", account)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required", "token_missing")
		return
	}
	var patch ProfileUpdate
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	account, err := h.service.UpdateProfile(r.Context(), principal.AccountID, patch)
	if err != nil {
		h.fail(w, "update profile", err)
		return
	}
	httpx.OK(w, http.StatusOK, "profile updated", account)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required", "token_missing")
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if err := h.service.ChangePassword(r.Context(), principal.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, "change password", err)
		return
	}
	httpx.OK(w, http.StatusOK, "password changed", nil)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	switch q.Get("is_active") {
	case "true":
		active := true
		filter.Active = &active
	case "false":
		active := false
		filter.Active = &active
	}
	accounts, pagination, err := h.service.List(r.Context(), filter, shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	httpx.Page(w, "accounts", accounts, pagination)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.OK(w, http.StatusOK, "account", account)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	message := "account deactivated"
	if active {
		message = "account activated"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := h.service.SetActive(r.Context(), chi.URLParam(r, "accountID"), active)
		if err != nil {
			h.fail(w, "set account active", err)
			return
		}
		httpx.OK(w, http.StatusOK, message, account)
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.MarkVerified(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.fail(w, "verify account", err)
		return
	}
	httpx.OK(w, http.StatusOK, "account verified", account)
}

type superuserRequest struct {
	IsSuperuser bool `json:"is_superuser"`
}

func (h *Handler) setSuperuser(w http.ResponseWriter, r *http.Request) {
	var req superuserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	account, err := h.service.SetSuperuser(r.Context(), chi.URLParam(r, "accountID"), req.IsSuperuser)
	if err != nil {
		h.fail(w, "set superuser", err)
		return
	}
	httpx.OK(w, http.StatusOK, "account updated", account)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "accountID")); err != nil {
		h.fail(w, "delete account", err)
		return
	}
	httpx.OK(w, http.StatusOK, "account deleted", nil)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
