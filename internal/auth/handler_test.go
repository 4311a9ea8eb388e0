package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobready/authcore/internal/auth"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/store/memstore"
	"github.com/jobready/authcore/internal/users"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

type flowFixture struct {
	t        *testing.T
	now      time.Time
	accounts *users.Service
	service  *auth.Service
	authn    *auth.Authenticator
	router   chi.Router
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	f := &flowFixture{t: t, now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	store := memstore.New()
	f.accounts = users.NewService(store.Accounts(), users.ServiceConfig{BcryptCost: bcrypt.MinCost, Clock: clock})
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte("flow-access-secret"),
		RefreshSecret: []byte("flow-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}, clock)
	require.NoError(t, err)
	f.service = auth.NewService(f.accounts, tokens)
	f.authn = auth.NewAuthenticator(tokens, rbac.NewResolver(store.Assignments()))

	f.router = chi.NewRouter()
	f.router.Use(auth.NewGate(f.authn, auth.GateConfig{}).Middleware)
	f.router.Route("/api/v1/auth", auth.NewHandler(nil, f.service).MountRoutes)
	return f
}

func (f *flowFixture) call(method, path, token string, body any, headers ...string) (int, envelope) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *flowFixture) login(email, password string) auth.TokenPair {
	f.t.Helper()
	code, env := f.call(http.MethodPost, "/api/v1/auth/jwt/login", "", map[string]string{"email": email, "password": password})
	require.Equal(f.t, http.StatusOK, code, env.Message)
	var pair auth.TokenPair
	require.NoError(f.t, json.Unmarshal(env.Data, &pair))
	return pair
}

func codeOf(err error) string {
	if e, ok := shared.AsError(err); ok {
		return e.Code
	}
	return ""
}

func TestRegisterLoginMe(t *testing.T) {
	f := newFlowFixture(t)

	code, env := f.call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "Grace@Example.com", "password": "Passw0rdOne", "first_name": "Grace",
	})
	require.Equal(t, http.StatusCreated, code)
	var account users.Account
	require.NoError(t, json.Unmarshal(env.Data, &account))
	assert.Equal(t, "grace@example.com", account.Email)
	assert.NotContains(t, string(env.Data), "password")

	code, env = f.call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "grace@example.com", "password": "Passw0rdOne"})
	assert.Equal(t, http.StatusConflict, code)

	pair := f.login("grace@example.com", "Passw0rdOne")
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, f.now.Add(15*time.Minute), pair.AccessExpiresAt.UTC())
	assert.Equal(t, f.now.Add(24*time.Hour), pair.RefreshExpiresAt.UTC())

	code, env = f.call(http.MethodGet, "/api/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	var principal rbac.Principal
	require.NoError(t, json.Unmarshal(env.Data, &principal))
	assert.Equal(t, account.ID, principal.AccountID)
	assert.True(t, principal.IsActive)

	code, env = f.call(http.MethodGet, "/api/v1/auth/me", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenInvalid}, env.Errors)

	code, env = f.call(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenMissing}, env.Errors)
}

func TestLoginDoesNotDiscloseAccounts(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "ann@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	off, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "off@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	_, err = f.accounts.SetActive(context.Background(), off.ID, false)
	require.NoError(t, err)

	attempts := []map[string]string{
		{"email": "ann@example.com", "password": "Wrong0Password"},
		{"email": "nobody@example.com", "password": "Passw0rdOne"},
		{"email": "off@example.com", "password": "Passw0rdOne"},
	}
	var messages []string
	for _, body := range attempts {
		code, env := f.call(http.MethodPost, "/api/v1/auth/jwt/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, []string{"invalid_credentials"}, env.Errors)
		messages = append(messages, env.Message)
	}
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[0], messages[2])

	code, _ := f.call(http.MethodPost, "/api/v1/auth/jwt/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestRefresh(t *testing.T) {
	f := newFlowFixture(t)
	account, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "rui@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	pair := f.login("rui@example.com", "Passw0rdOne")

	f.now = f.now.Add(time.Hour)
	code, env := f.call(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	var next auth.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.Equal(t, f.now.Add(15*time.Minute), next.AccessExpiresAt.UTC())

	code, env = f.call(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenInvalid}, env.Errors)

	code, _ = f.call(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	_, err = f.accounts.SetActive(context.Background(), account.ID, false)
	require.NoError(t, err)
	code, env = f.call(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{"refresh_token": next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenInvalid}, env.Errors)

	f.now = f.now.Add(48 * time.Hour)
	code, env = f.call(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{"refresh_token": next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenExpired}, env.Errors)
}

func TestTokenStatus(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "sam@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	pair := f.login("sam@example.com", "Passw0rdOne")

	f.now = f.now.Add(5 * time.Minute)
	code, env := f.call(http.MethodGet, "/api/v1/auth/token/status", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	var status auth.TokenStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "access", status.Type)
	assert.False(t, status.Expired)
	assert.Equal(t, int64(600), status.RemainingSeconds)

	code, env = f.call(http.MethodGet, "/api/v1/auth/token/status?type=refresh", pair.AccessToken, nil, "X-Refresh-Token", pair.RefreshToken)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "refresh", status.Type)
	assert.Equal(t, int64((24*time.Hour-5*time.Minute)/time.Second), status.RemainingSeconds)

	code, env = f.call(http.MethodGet, "/api/v1/auth/token/status?type=refresh", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenInvalid}, env.Errors)

	code, env = f.call(http.MethodGet, "/api/v1/auth/token/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenMissing}, env.Errors)
}

func TestTokenStatusReportsExpiredAccessToken(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "lee@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	pair := f.login("lee@example.com", "Passw0rdOne")

	f.now = f.now.Add(20 * time.Minute)
	code, env := f.call(http.MethodGet, "/api/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, []string{auth.CodeTokenExpired}, env.Errors)

	code, env = f.call(http.MethodGet, "/api/v1/auth/token/status", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	var status auth.TokenStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "access", status.Type)
	assert.True(t, status.Expired)
	assert.Zero(t, status.RemainingSeconds)
	assert.Equal(t, pair.AccessExpiresAt.UTC(), status.ExpiresAt)
}

func TestServiceStatusReportsExpiredRefresh(t *testing.T) {
	f := newFlowFixture(t)
	_, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "kim@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	pair, _, err := f.service.Login(context.Background(), "kim@example.com", "Passw0rdOne")
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)
	status, err := f.service.Status(auth.KindRefresh, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, status.Expired)
	assert.Zero(t, status.RemainingSeconds)
	assert.Equal(t, pair.RefreshExpiresAt.UTC(), status.ExpiresAt)

	_, err = f.service.Status(auth.KindAccess, pair.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAuthentication)
}

func TestAuthenticatorRejectsMissingAndInactiveAccounts(t *testing.T) {
	f := newFlowFixture(t)
	account, err := f.accounts.Register(context.Background(), users.RegisterInput{Email: "lee@example.com", Password: "Passw0rdOne"})
	require.NoError(t, err)
	pair, _, err := f.service.Login(context.Background(), "lee@example.com", "Passw0rdOne")
	require.NoError(t, err)

	principal, err := f.authn.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, principal.AccountID)

	_, err = f.accounts.SetActive(context.Background(), account.ID, false)
	require.NoError(t, err)
	_, err = f.authn.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, auth.CodeTokenInvalid, codeOf(err))

	require.NoError(t, f.accounts.Delete(context.Background(), account.ID))
	_, err = f.authn.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, auth.CodeTokenInvalid, codeOf(err))
}
