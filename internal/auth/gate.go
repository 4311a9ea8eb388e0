package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jobready/authcore/internal/platform/httpx"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

// DefaultPublicPaths are reachable without a token.
var DefaultPublicPaths = []string{
	"/",
	"/health",
	"/healthz",
	"/docs",
	"/redoc",
	"/openapi.json",
	"/metrics",
	"/api/v1/auth/register",
	"/api/v1/auth/jwt/login",
	"/api/v1/auth/jwt/refresh",
	"/api/v1/auth/token/status",
	"/api/v1/info",
}

// Gate outcomes, used as metric labels.
const (
	OutcomePublic        = "public"
	OutcomeAuthenticated = "authenticated"
	OutcomeError         = "error"
)

// AccessVerifier resolves a raw access token into a principal.
type AccessVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (rbac.Principal, error)
}

// DecisionRecorder observes gate outcomes.
type DecisionRecorder interface {
	RecordGateDecision(outcome string)
}

// GateConfig configures a Gate. Nil PublicPaths uses DefaultPublicPaths.
type GateConfig struct {
	PublicPaths []string
	Logger      *slog.Logger
	Recorder    DecisionRecorder
}

// Gate authenticates every request outside the public paths.
type Gate struct {
	verifier AccessVerifier
	public   []string
	logger   *slog.Logger
	recorder DecisionRecorder
}

// NewGate builds a Gate.
func NewGate(verifier AccessVerifier, cfg GateConfig) *Gate {
	paths := cfg.PublicPaths
	if paths == nil {
		paths = DefaultPublicPaths
	}
	public := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p != "/" {
			p = strings.TrimRight(p, "/")
		}
		public = append(public, p)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{verifier: verifier, public: public, logger: logger, recorder: cfg.Recorder}
}

// IsPublic reports whether path bypasses authentication. "/" matches only
// itself; other entries match on path segment boundaries.
func (g *Gate) IsPublic(path string) bool {
	for _, p := range g.public {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware is the chi-compatible handler wrapper.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || g.IsPublic(r.URL.Path) {
			g.record(OutcomePublic)
			next.ServeHTTP(w, r)
			return
		}

		raw, code := bearerToken(r.Header.Get("Authorization"))
		if code != "" {
			g.deny(w, code, tokenMessage(code))
			return
		}

		principal, err := g.verifier.VerifyAccessToken(r.Context(), raw)
		if err != nil {
			if e, ok := shared.AsError(err); ok && e.Code != "" && httpx.StatusOf(err) == http.StatusUnauthorized {
				g.deny(w, e.Code, tokenMessage(e.Code))
				return
			}
			g.logger.Error("gate resolve principal", slog.String("path", r.URL.Path), slog.Any("error", err))
			g.record(OutcomeError)
			httpx.Fail(w, http.StatusInternalServerError, "internal error", "internal_error")
			return
		}

		g.record(OutcomeAuthenticated)
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (g *Gate) deny(w http.ResponseWriter, code, message string) {
	g.record(code)
	w.Header().Set("WWW-Authenticate", "Bearer")
	httpx.Fail(w, http.StatusUnauthorized, message, code)
}

func (g *Gate) record(outcome string) {
	if g.recorder != nil {
		g.recorder.RecordGateDecision(outcome)
	}
}

// bearerToken extracts the token from an Authorization header value, or
// returns the error code describing why it cannot.
func bearerToken(header string) (string, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", CodeTokenMissing
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", CodeTokenMalformed
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", CodeTokenMalformed
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return "", CodeTokenMalformed
	}
	for _, s := range segments {
		if s == "" {
			return "", CodeTokenMalformed
		}
	}
	return token, ""
}

func tokenMessage(code string) string {
	switch code {
	case CodeTokenMissing:
		return "authorization header missing"
	case CodeTokenMalformed:
		return "authorization header malformed"
	case CodeTokenExpired:
		return "token has expired"
	}
	return "invalid token"
}
