package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	audithttp "github.com/jobready/authcore/internal/audit/http"
	"github.com/jobready/authcore/internal/auth"
	"github.com/jobready/authcore/internal/observability"
	"github.com/jobready/authcore/internal/platform/httpx"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/roles"
	"github.com/jobready/authcore/internal/users"
	"github.com/jobready/authcore/jobs"
)

// Version is reported by the info endpoints.
var Version = "dev"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Services   *Services
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
}

// NewRouter constructs the chi.Router with authcore defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	var publicPaths []string
	if params.Config != nil && len(params.Config.PublicPaths) > 0 {
		publicPaths = params.Config.PublicPaths
	}
	gate := auth.NewGate(params.Services.Authenticator, auth.GateConfig{
		PublicPaths: publicPaths,
		Logger:      logger,
		Recorder:    params.Metrics,
	})
	r.Use(gate.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found", "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
	})

	info := func(w http.ResponseWriter, r *http.Request) {
		env := ""
		if params.Config != nil {
			env = params.Config.AppEnv
		}
		httpx.OK(w, http.StatusOK, "authcore", map[string]string{"version": Version, "environment": env})
	}
	health := func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
	}
	r.Get("/", info)
	r.Get("/health", health)
	r.Get("/healthz", health)
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	authz := rbac.Middleware{Logger: logger}
	authHandler := auth.NewHandler(logger, params.Services.Auth)
	usersHandler := users.NewHandler(logger, params.Services.Users, authz)
	rolesHandler := roles.NewHandler(logger, params.Services.Roles, authz)
	assignmentsHandler := rbac.NewHandler(logger, params.Services.Ledger, authz)
	permissionsHandler := rbac.NewPermissionsHandler(authz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", info)
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(20, time.Minute))
			authHandler.MountRoutes(r)
		})
		r.Route("/users", usersHandler.MountRoutes)
		r.Route("/roles", func(r chi.Router) {
			assignmentsHandler.MountRoutes(r)
			rolesHandler.MountRoutes(r)
		})
		r.Route("/permissions", permissionsHandler.MountRoutes)
		if params.Services.Audit != nil {
			r.Route("/audit", audithttp.NewHandler(logger, params.Services.Audit, authz).MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(authz.RequireSuperuser())
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
