package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jobready/authcore/internal/platform/httpx"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/jwt/login", h.handleLogin)
	r.Post("/jwt/refresh", h.handleRefresh)
	r.Get("/me", h.handleMe)
	r.Get("/token/status", h.handleTokenStatus)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	account, err := h.service.Register(r.Context(), users.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "account registered", account)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, account, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	h.logger.Info("login", slog.String("account_id", account.ID))
	httpx.OK(w, http.StatusOK, "login successful", pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}
	httpx.OK(w, http.StatusOK, "token refreshed", pair)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required", CodeTokenMissing)
		return
	}
	httpx.OK(w, http.StatusOK, "current principal", principal)
}

func (h *Handler) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	raw, code := bearerToken(r.Header.Get("Authorization"))
	if code != "" {
		httpx.Fail(w, http.StatusUnauthorized, tokenMessage(code), code)
		return
	}
	kind := KindAccess
	if strings.EqualFold(r.URL.Query().Get("type"), string(KindRefresh)) {
		kind = KindRefresh
		if alt := r.Header.Get("X-Refresh-Token"); alt != "" {
			raw = alt
		}
	}
	status, err := h.service.Status(kind, raw)
	if err != nil {
		h.fail(w, "token status", err)
		return
	}
	httpx.OK(w, http.StatusOK, "token status", status)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
