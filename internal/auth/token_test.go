package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accessSecret  = []byte("access-secret-for-tests")
	refreshSecret = []byte("refresh-secret-for-tests")
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManager(t *testing.T) (*TokenManager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewTokenManager(TokenConfig{AccessSecret: accessSecret, RefreshSecret: refreshSecret}, clock.Now)
	require.NoError(t, err)
	return m, clock
}

func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestNewTokenManagerValidatesSecrets(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{AccessSecret: accessSecret}, nil)
	require.Error(t, err)

	_, err = NewTokenManager(TokenConfig{AccessSecret: accessSecret, RefreshSecret: accessSecret}, nil)
	require.Error(t, err)

	m, err := NewTokenManager(TokenConfig{AccessSecret: accessSecret, RefreshSecret: refreshSecret}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTTL, m.TTL(KindAccess))
	assert.Equal(t, DefaultRefreshTTL, m.TTL(KindRefresh))
}

func TestIssueThenVerify(t *testing.T) {
	m, clock := newManager(t)
	raw, exp, err := m.Issue(KindAccess, "account-1", 0)
	require.NoError(t, err)
	assert.Len(t, strings.Split(raw, "."), 3)
	assert.Equal(t, clock.now.Add(time.Hour), exp)

	claims, err := m.Verify(KindAccess, raw)
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.Subject)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, clock.now.Unix(), claims.IssuedAt.Unix())

	_, _, err = m.Issue(KindAccess, "", 0)
	require.Error(t, err)
	_, _, err = m.Issue(TokenKind("session"), "account-1", 0)
	require.Error(t, err)
}

func TestVerifyExpiryScenario(t *testing.T) {
	m, clock := newManager(t)
	raw, _, err := m.Issue(KindAccess, "account-1", 60*time.Second)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Verify(KindAccess, raw)
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	_, err = m.Verify(KindAccess, raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrTokenInvalid))

	var verr *VerifyError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, OutcomeExpired, verr.Outcome)
}

func TestVerifyExpiresExactlyAtExp(t *testing.T) {
	m, clock := newManager(t)
	raw, _, err := m.Issue(KindAccess, "account-1", 30*time.Second)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, err = m.Verify(KindAccess, raw)
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	m, _ := newManager(t)
	refresh, _, err := m.Issue(KindRefresh, "account-1", 0)
	require.NoError(t, err)

	_, err = m.Verify(KindAccess, refresh)
	assert.True(t, errors.Is(err, ErrTokenInvalid))

	forged := signRaw(t, jwt.SigningMethodHS256, accessSecret, Claims{
		Type: string(KindRefresh),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	_, err = m.Verify(KindAccess, forged)
	assert.True(t, errors.Is(err, ErrTokenInvalid), "correct secret but refresh claim")

	_, err = m.Verify(KindRefresh, refresh)
	assert.NoError(t, err)
}

func TestVerifyInvalidBeatsExpired(t *testing.T) {
	m, clock := newManager(t)
	past := clock.now.Add(-time.Minute)
	claims := Claims{
		Type: string(KindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}

	expired := signRaw(t, jwt.SigningMethodHS256, accessSecret, claims)
	_, err := m.Verify(KindAccess, expired)
	assert.True(t, errors.Is(err, ErrTokenExpired))

	wrongSecret := signRaw(t, jwt.SigningMethodHS256, []byte("someone-else"), claims)
	_, err = m.Verify(KindAccess, wrongSecret)
	assert.True(t, errors.Is(err, ErrTokenInvalid))

	signedAsRefresh := signRaw(t, jwt.SigningMethodHS256, refreshSecret, claims)
	_, err = m.Verify(KindAccess, signedAsRefresh)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestVerifyRejectsMalformedAndForeignAlgorithms(t *testing.T) {
	m, clock := newManager(t)
	claims := Claims{
		Type: string(KindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			IssuedAt:  jwt.NewNumericDate(clock.now),
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	none := signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims)
	hs512 := signRaw(t, jwt.SigningMethodHS512, accessSecret, claims)
	valid, _, err := m.Issue(KindAccess, "account-1", 0)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, raw := range map[string]string{
		"garbage":  "not-a-token",
		"empty":    "",
		"none alg": none,
		"hs512":    hs512,
		"tampered": tampered,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(KindAccess, raw)
			assert.True(t, errors.Is(err, ErrTokenInvalid))
		})
	}
}

func TestVerifyRequiresClaims(t *testing.T) {
	m, clock := newManager(t)
	cases := map[string]Claims{
		"no subject": {Type: "access", RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(clock.now), ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		}},
		"no expiry": {Type: "access", RegisteredClaims: jwt.RegisteredClaims{
			Subject: "account-1", IssuedAt: jwt.NewNumericDate(clock.now),
		}},
		"no issued at": {Type: "access", RegisteredClaims: jwt.RegisteredClaims{
			Subject: "account-1", ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		}},
		"no type": {RegisteredClaims: jwt.RegisteredClaims{
			Subject: "account-1", IssuedAt: jwt.NewNumericDate(clock.now), ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		}},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			raw := signRaw(t, jwt.SigningMethodHS256, accessSecret, claims)
			_, err := m.Verify(KindAccess, raw)
			assert.True(t, errors.Is(err, ErrTokenInvalid))
		})
	}
}

func TestRemainingVerifiesFirst(t *testing.T) {
	m, clock := newManager(t)
	raw, _, err := m.Issue(KindAccess, "account-1", 10*time.Minute)
	require.NoError(t, err)

	left, expiresAt, err := m.Remaining(KindAccess, raw)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, left)
	assert.True(t, expiresAt.Equal(clock.now.Add(10*time.Minute)))

	clock.Advance(11 * time.Minute)
	left, expiredAt, err := m.Remaining(KindAccess, raw)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.True(t, expiredAt.Equal(expiresAt))

	forged := signRaw(t, jwt.SigningMethodHS256, []byte("attacker"), Claims{
		Type: string(KindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			IssuedAt:  jwt.NewNumericDate(clock.now),
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(100 * time.Hour)),
		},
	})
	_, _, err = m.Remaining(KindAccess, forged)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestIssuePair(t *testing.T) {
	m, clock := newManager(t)
	pair, err := m.IssuePair("account-1")
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, clock.now.Add(DefaultAccessTTL), pair.AccessExpiresAt)
	assert.Equal(t, clock.now.Add(DefaultRefreshTTL), pair.RefreshExpiresAt)

	_, err = m.Verify(KindAccess, pair.AccessToken)
	assert.NoError(t, err)
	_, err = m.Verify(KindRefresh, pair.RefreshToken)
	assert.NoError(t, err)
	_, err = m.Verify(KindRefresh, pair.AccessToken)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}
