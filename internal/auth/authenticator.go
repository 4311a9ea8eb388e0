package auth

import (
	"context"
	"errors"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

// Error codes reported by the gate and the token endpoints.
const (
	CodeTokenMissing   = "token_missing"
	CodeTokenMalformed = "token_malformed"
	CodeTokenInvalid   = "token_invalid"
	CodeTokenExpired   = "token_expired"
)

// PrincipalResolver builds principals from account ids.
type PrincipalResolver interface {
	Resolve(ctx context.Context, accountID string) (rbac.Principal, error)
}

// Authenticator turns access tokens into principals.
type Authenticator struct {
	tokens   *TokenManager
	resolver PrincipalResolver
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(tokens *TokenManager, resolver PrincipalResolver) *Authenticator {
	return &Authenticator{tokens: tokens, resolver: resolver}
}

// VerifyAccessToken verifies raw as an access token and resolves its
// subject. Token failures and unknown or inactive accounts are returned as
// authentication errors carrying a token_* code; storage failures pass
// through unchanged.
func (a *Authenticator) VerifyAccessToken(ctx context.Context, raw string) (rbac.Principal, error) {
	claims, err := a.tokens.Verify(KindAccess, raw)
	if err != nil {
		return rbac.Principal{}, tokenError(err)
	}
	principal, err := a.resolver.Resolve(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Principal{}, shared.Unauthenticated(CodeTokenInvalid, "account not found")
		}
		return rbac.Principal{}, err
	}
	if !principal.IsActive {
		return rbac.Principal{}, shared.Unauthenticated(CodeTokenInvalid, "account inactive")
	}
	return principal, nil
}

// IssueTokenPair issues access and refresh tokens for accountID.
func (a *Authenticator) IssueTokenPair(accountID string) (TokenPair, error) {
	return a.tokens.IssuePair(accountID)
}

// tokenError converts a verification failure into an authentication error.
func tokenError(err error) error {
	if errors.Is(err, ErrTokenExpired) {
		return shared.Unauthenticated(CodeTokenExpired, "token has expired")
	}
	return shared.Unauthenticated(CodeTokenInvalid, "invalid token")
}
