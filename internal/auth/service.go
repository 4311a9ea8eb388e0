package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/users"
)

// Service wraps the login, refresh and token inspection flows.
type Service struct {
	accounts *users.Service
	tokens   *TokenManager
}

// NewService constructs a new Service.
func NewService(accounts *users.Service, tokens *TokenManager) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, in users.RegisterInput) (users.Account, error) {
	return s.accounts.Register(ctx, in)
}

// Login validates credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, users.Account, error) {
	account, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return TokenPair{}, users.Account{}, err
	}
	pair, err := s.tokens.IssuePair(account.ID)
	if err != nil {
		return TokenPair{}, users.Account{}, err
	}
	return pair, account, nil
}

// Refresh exchanges a valid refresh token for a new pair. The account must
// still exist and be active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(KindRefresh, refreshToken)
	if err != nil {
		return TokenPair{}, tokenError(err)
	}
	account, err := s.accounts.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, shared.Unauthenticated(CodeTokenInvalid, "account not found")
		}
		return TokenPair{}, err
	}
	if !account.IsActive {
		return TokenPair{}, shared.Unauthenticated(CodeTokenInvalid, "account inactive")
	}
	return s.tokens.IssuePair(account.ID)
}

// TokenStatus describes a verified token's remaining lifetime.
type TokenStatus struct {
	Type             string    `json:"type"`
	Expired          bool      `json:"expired"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Status inspects an authentic token of kind. Claims of tokens failing the
// signature or kind checks are never reported.
func (s *Service) Status(kind TokenKind, raw string) (TokenStatus, error) {
	left, expiresAt, err := s.tokens.Remaining(kind, raw)
	if err != nil {
		return TokenStatus{}, tokenError(err)
	}
	return TokenStatus{
		Type:             string(kind),
		Expired:          left == 0,
		RemainingSeconds: int64(left / time.Second),
		ExpiresAt:        expiresAt,
	}, nil
}
