package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/media-auth-service/internal/auth"
	"github.com/spec-kit/media-auth-service/internal/config"
	"github.com/spec-kit/media-auth-service/internal/domain"
	"github.com/spec-kit/media-auth-service/internal/events"
	"github.com/spec-kit/media-auth-service/internal/ratelimit"
	"github.com/spec-kit/media-auth-service/internal/repository"
)

// Service-level failures. ErrInvalidCredentials covers unknown email, wrong
// password and disabled accounts alike; ErrInvalidRefreshToken covers every
// way a refresh can fail, so the boundary has nothing to leak.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailExists         = errors.New("email already registered")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrTooManyAttempts     = errors.New("too many login attempts")
)

// dummyHash is a valid bcrypt digest compared against when the email is
// unknown, so both login failure branches pay the hashing cost.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// AuthService coordinates registration, login and the refresh-token
// lifecycle. It is the only component that writes credential state; every
// other service validates access tokens locally.
type AuthService struct {
	accounts   repository.AccountRepository
	tokens     repository.RefreshTokenRepository
	issuer     *auth.TokenIssuer
	limiter    *ratelimit.LoginLimiter
	dispatcher events.Dispatcher
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborator requirements for the service.
type AuthDependencies struct {
	AccountRepo      repository.AccountRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Issuer           *auth.TokenIssuer
	Limiter          *ratelimit.LoginLimiter
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts:   deps.AccountRepo,
		tokens:     deps.RefreshTokenRepo,
		issuer:     deps.Issuer,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// Register creates a new account and issues its first token pair.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*domain.Account, *domain.TokenPair, error) {
	email = NormalizeEmail(email)

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, nil, ErrEmailExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	account := &domain.Account{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       domain.AccountStatusActive,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Lost a race with a concurrent registration for the same email.
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.EventAccountRegistered, account.ID, account.Email, nil)
	return account, pair, nil
}

// Login authenticates an account by email and password. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password, addr string) (*domain.Account, *domain.TokenPair, error) {
	email = NormalizeEmail(email)

	if !s.limiter.Allow(ctx, email, addr) {
		return nil, nil, ErrTooManyAttempts
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn comparable time so the miss is not observable.
			auth.VerifyPassword(dummyHash, password)
			s.loginFailed(ctx, "", email, addr, "unknown email")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !auth.VerifyPassword(account.PasswordHash, password) {
		s.loginFailed(ctx, account.ID, email, addr, "password mismatch")
		return nil, nil, ErrInvalidCredentials
	}
	if !account.Active() {
		s.loginFailed(ctx, account.ID, email, addr, "account disabled")
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	s.limiter.Reset(ctx, email, addr)
	s.publish(ctx, events.EventLoginSucceeded, account.ID, account.Email, nil)
	return account, pair, nil
}

// Refresh redeems a refresh token, rotating it and minting a new access
// token. Of two concurrent redemptions of the same token, exactly one
// succeeds; the other observes reuse and the whole chain is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	newToken, expiresAt, err := s.issuer.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	successor, err := s.tokens.Rotate(ctx, refreshToken, newToken, expiresAt)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReuseDetected):
			accountID := ""
			chainID := ""
			if successor != nil {
				accountID = successor.AccountID
				chainID = successor.ChainID
			}
			s.logger.Warn("refresh token reuse detected; chain revoked",
				zap.String("account_id", accountID),
				zap.String("chain_id", chainID),
			)
			s.publish(ctx, events.EventTokenReuseDetected, accountID, "",
				events.TokenReuseDetectedPayload{ChainID: chainID})
			return nil, ErrInvalidRefreshToken
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrExpired):
			return nil, ErrInvalidRefreshToken
		default:
			return nil, err
		}
	}

	account, err := s.accounts.GetByID(ctx, successor.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Active() {
		_ = s.tokens.RevokeChain(ctx, successor.ChainID)
		return nil, ErrInvalidRefreshToken
	}

	accessToken, accessExpiry, err := s.issuer.IssueAccessToken(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventTokensRotated, account.ID, account.Email,
		events.TokensRotatedPayload{ChainID: successor.ChainID})

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: successor.Token,
		ExpiresAt:    accessExpiry,
	}, nil
}

// Logout revokes the refresh token. Idempotent: revoking an unknown or
// already-revoked token is a no-op. Issued access tokens stay valid until
// their own expiry.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	row, err := s.tokens.FindActive(ctx, refreshToken)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	if row != nil {
		s.publish(ctx, events.EventTokensRevoked, row.AccountID, "",
			events.TokensRevokedPayload{Reason: "logout"})
	}
	return nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every outstanding refresh token for the account.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(account.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForAccount(ctx, account.ID); err != nil {
		return err
	}

	s.publish(ctx, events.EventTokensRevoked, account.ID, account.Email,
		events.TokensRevokedPayload{Reason: "password change"})
	return nil
}

// GetAccount fetches an account by id.
func (s *AuthService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// NormalizeEmail case-folds an email address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) issuePair(ctx context.Context, account *domain.Account) (*domain.TokenPair, error) {
	accessToken, accessExpiry, err := s.issuer.IssueAccessToken(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, err
	}

	tokenStr, refreshExpiry, err := s.issuer.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	refresh := &domain.RefreshToken{
		Token:     tokenStr,
		AccountID: account.ID,
		ChainID:   uuid.NewString(),
		ExpiresAt: refreshExpiry,
	}
	if err := s.tokens.Create(ctx, refresh); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, accountID, email, addr, reason string) {
	s.limiter.RecordFailure(ctx, email, addr)
	s.publish(ctx, events.EventLoginFailed, accountID, email,
		events.LoginFailedPayload{Reason: reason, Addr: addr})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, accountID, email string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: accountID,
		Email:     email,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
