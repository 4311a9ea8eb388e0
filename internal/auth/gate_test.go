package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

type stubResolver struct {
	principals map[string]rbac.Principal
	err        error
}

func (s stubResolver) Resolve(ctx context.Context, accountID string) (rbac.Principal, error) {
	if s.err != nil {
		return rbac.Principal{}, s.err
	}
	p, ok := s.principals[accountID]
	if !ok {
		return rbac.Principal{}, shared.NotFound("account not found")
	}
	return p, nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordGateDecision(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type gateFixture struct {
	tokens   *TokenManager
	clock    *fakeClock
	recorder *outcomeRecorder
	handler  http.Handler
	seen     *rbac.Principal
}

func newGateFixture(t *testing.T, resolver PrincipalResolver) *gateFixture {
	t.Helper()
	tokens, clock := newManager(t)
	f := &gateFixture{tokens: tokens, clock: clock, recorder: &outcomeRecorder{}}
	gate := NewGate(NewAuthenticator(tokens, resolver), GateConfig{Recorder: f.recorder})
	f.handler = gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
			f.seen = &p
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return f
}

func (f *gateFixture) do(method, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func errorCodes(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Errors
}

func activeResolver() stubResolver {
	return stubResolver{principals: map[string]rbac.Principal{
		"account-1": {AccountID: "account-1", IsActive: true, Permissions: rbac.NewPermissionSet("users.view")},
		"disabled":  {AccountID: "disabled", IsActive: false},
	}}
}

func TestGateAttachesPrincipal(t *testing.T) {
	f := newGateFixture(t, activeResolver())
	raw, _, err := f.tokens.Issue(KindAccess, "account-1", 0)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/v1/users/me", "Bearer "+raw)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, f.seen)
	assert.Equal(t, "account-1", f.seen.AccountID)
	assert.True(t, f.seen.HasPermission("users.view"))

	rec = f.do(http.MethodGet, "/api/v1/users/me", "bearer "+raw)
	assert.Equal(t, http.StatusNoContent, rec.Code, "scheme is case-insensitive")
	assert.Equal(t, []string{OutcomeAuthenticated, OutcomeAuthenticated}, f.recorder.outcomes)
}

func TestGateErrorCodes(t *testing.T) {
	f := newGateFixture(t, activeResolver())
	valid, _, err := f.tokens.Issue(KindAccess, "account-1", time.Minute)
	require.NoError(t, err)
	refresh, _, err := f.tokens.Issue(KindRefresh, "account-1", 0)
	require.NoError(t, err)
	unknown, _, err := f.tokens.Issue(KindAccess, "ghost", 0)
	require.NoError(t, err)
	disabled, _, err := f.tokens.Issue(KindAccess, "disabled", 0)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   string
		before func()
	}{
		{name: "missing", header: "", code: CodeTokenMissing},
		{name: "wrong scheme", header: "Basic " + valid, code: CodeTokenMalformed},
		{name: "scheme only", header: "Bearer", code: CodeTokenMalformed},
		{name: "two segments", header: "Bearer abc.def", code: CodeTokenMalformed},
		{name: "empty segment", header: "Bearer abc..def", code: CodeTokenMalformed},
		{name: "forged", header: "Bearer abc.def.ghi", code: CodeTokenInvalid},
		{name: "refresh as access", header: "Bearer " + refresh, code: CodeTokenInvalid},
		{name: "unknown account", header: "Bearer " + unknown, code: CodeTokenInvalid},
		{name: "inactive account", header: "Bearer " + disabled, code: CodeTokenInvalid},
		{name: "expired", header: "Bearer " + valid, code: CodeTokenExpired, before: func() { f.clock.Advance(2 * time.Minute) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.before != nil {
				tc.before()
			}
			f.seen = nil
			rec := f.do(http.MethodGet, "/api/v1/roles", tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, []string{tc.code}, errorCodes(t, rec))
			assert.Nil(t, f.seen)
		})
	}
}

func TestGatePublicPaths(t *testing.T) {
	f := newGateFixture(t, activeResolver())

	for _, path := range []string{"/", "/health", "/healthz", "/metrics", "/api/v1/auth/jwt/login", "/api/v1/auth/register", "/docs/index.html"} {
		rec := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
	}
	for _, path := range []string{"/healthzx", "/api/v1/auth/registered", "/api/v1/users", "/metrics-extra"} {
		rec := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := f.do(http.MethodOptions, "/api/v1/users", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGateCustomPublicPaths(t *testing.T) {
	tokens, _ := newManager(t)
	gate := NewGate(NewAuthenticator(tokens, activeResolver()), GateConfig{PublicPaths: []string{"/status/", " ", "/"}})
	assert.True(t, gate.IsPublic("/status"))
	assert.True(t, gate.IsPublic("/status/live"))
	assert.True(t, gate.IsPublic("/"))
	assert.False(t, gate.IsPublic("/health"))
	assert.False(t, gate.IsPublic("/statusboard"))
}

func TestGateStorageFailureIsInternal(t *testing.T) {
	f := newGateFixture(t, stubResolver{err: errors.New("connection refused")})
	raw, _, err := f.tokens.Issue(KindAccess, "account-1", 0)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/v1/roles", "Bearer "+raw)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"internal_error"}, errorCodes(t, rec))
	assert.Equal(t, []string{OutcomeError}, f.recorder.outcomes)
}

func TestGateRecordsDenials(t *testing.T) {
	f := newGateFixture(t, activeResolver())
	f.do(http.MethodGet, "/health", "")
	f.do(http.MethodGet, "/api/v1/roles", "")
	f.do(http.MethodGet, "/api/v1/roles", "Token abc")
	assert.Equal(t, []string{OutcomePublic, CodeTokenMissing, CodeTokenMalformed}, f.recorder.outcomes)
}
