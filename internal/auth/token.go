package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/media-auth-service/internal/domain"
)

// refreshTokenBytes is the entropy of an opaque refresh token. 32 bytes keeps
// the collision/guess probability negligible.
const refreshTokenBytes = 32

// Claims describes the access-token JWT payload.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints signed access tokens and opaque refresh tokens.
// Access tokens are stateless and never persisted; refresh tokens carry no
// claims at all, so there is nothing in them to tamper with offline.
type TokenIssuer struct {
	keys       *KeySet
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer builds an issuer from the shared key set and TTL settings.
func NewTokenIssuer(keys *KeySet, accessTTLMinutes, refreshTTLDays int) *TokenIssuer {
	if accessTTLMinutes <= 0 {
		accessTTLMinutes = 15
	}
	if refreshTTLDays <= 0 {
		refreshTTLDays = 30
	}
	return &TokenIssuer{
		keys:       keys,
		accessTTL:  time.Duration(accessTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(refreshTTLDays) * 24 * time.Hour,
	}
}

// IssueAccessToken builds and signs a JWT for the account.
func (ti *TokenIssuer) IssueAccessToken(accountID, email string, role domain.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ti.accessTTL)
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(ti.keys.SigningKey())
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// GenerateRefreshToken produces a fresh opaque token string and its expiry.
// The string is pure randomness; persistence is the caller's job.
func (ti *TokenIssuer) GenerateRefreshToken() (string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, time.Now().Add(ti.refreshTTL), nil
}

// AccessTokenTTL exposes the configured access-token lifetime.
func (ti *TokenIssuer) AccessTokenTTL() time.Duration {
	return ti.accessTTL
}
