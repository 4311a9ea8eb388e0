package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes access from refresh tokens. It is carried in the
// "type" claim and selects the signing secret.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenConfig holds signing material and lifetimes. It is passed by value;
// nothing is read from package state.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Default lifetimes.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the payload of every token.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenOutcome classifies a failed verification.
type TokenOutcome int

const (
	OutcomeInvalid TokenOutcome = iota + 1
	OutcomeExpired
)

func (o TokenOutcome) String() string {
	switch o {
	case OutcomeInvalid:
		return "invalid"
	case OutcomeExpired:
		return "expired"
	}
	return "unknown"
}

var (
	// ErrTokenInvalid matches any VerifyError with OutcomeInvalid.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired matches any VerifyError with OutcomeExpired.
	ErrTokenExpired = errors.New("token expired")
)

// VerifyError reports why a token was rejected.
type VerifyError struct {
	Outcome TokenOutcome
	Err     error
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return "auth: token " + e.Outcome.String()
	}
	return "auth: token " + e.Outcome.String() + ": " + e.Err.Error()
}

// Is matches the outcome sentinels.
func (e *VerifyError) Is(target error) bool {
	switch target {
	case ErrTokenInvalid:
		return e.Outcome == OutcomeInvalid
	case ErrTokenExpired:
		return e.Outcome == OutcomeExpired
	}
	return false
}

func (e *VerifyError) Unwrap() error { return e.Err }

func invalid(err error) error { return &VerifyError{Outcome: OutcomeInvalid, Err: err} }

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	cfg    TokenConfig
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenManager validates cfg and builds a manager. A nil clock uses
// time.Now.
func NewTokenManager(cfg TokenConfig, clock func() time.Time) (*TokenManager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("auth: access and refresh secrets must be set")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		cfg: cfg,
		now: clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

func (m *TokenManager) secret(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return m.cfg.AccessSecret, nil
	case KindRefresh:
		return m.cfg.RefreshSecret, nil
	}
	return nil, fmt.Errorf("auth: unknown token kind %q", kind)
}

// TTL returns the default lifetime of kind.
func (m *TokenManager) TTL(kind TokenKind) time.Duration {
	if kind == KindRefresh {
		return m.cfg.RefreshTTL
	}
	return m.cfg.AccessTTL
}

// Issue signs a token of kind for subject. A non-positive ttl uses the
// configured lifetime.
func (m *TokenManager) Issue(kind TokenKind, subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("auth: token subject is required")
	}
	key, err := m.secret(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		ttl = m.TTL(kind)
	}
	now := m.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Type: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp.Truncate(time.Second), nil
}

// IssuePair issues an access and a refresh token for subject.
func (m *TokenManager) IssuePair(subject string) (TokenPair, error) {
	access, accessExp, err := m.Issue(KindAccess, subject, 0)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := m.Issue(KindRefresh, subject, 0)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks, in order, the signature under kind's secret, the type
// claim and finally expiry. Expiry is reported only for authentic tokens of
// the right kind.
func (m *TokenManager) Verify(kind TokenKind, raw string) (Claims, error) {
	claims, err := m.authenticate(kind, raw)
	if err != nil {
		return Claims{}, err
	}
	if !m.now().Before(claims.ExpiresAt.Time) {
		return Claims{}, &VerifyError{Outcome: OutcomeExpired}
	}
	return claims, nil
}

// Remaining returns how long an authentic token of kind stays valid, zero
// once expired, together with its expiry. Tokens failing signature or kind
// checks are rejected; claims are never read from an unverified token.
func (m *TokenManager) Remaining(kind TokenKind, raw string) (time.Duration, time.Time, error) {
	claims, err := m.authenticate(kind, raw)
	if err != nil {
		return 0, time.Time{}, err
	}
	expiresAt := claims.ExpiresAt.Time.UTC()
	left := expiresAt.Sub(m.now())
	if left < 0 {
		left = 0
	}
	return left, expiresAt, nil
}

func (m *TokenManager) authenticate(kind TokenKind, raw string) (Claims, error) {
	key, err := m.secret(kind)
	if err != nil {
		return Claims{}, invalid(err)
	}
	var claims Claims
	_, err = m.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return Claims{}, invalid(err)
	}
	if claims.Type != string(kind) {
		return Claims{}, invalid(fmt.Errorf("type claim %q, want %q", claims.Type, kind))
	}
	if claims.Subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Claims{}, invalid(errors.New("required claim missing"))
	}
	return claims, nil
}
