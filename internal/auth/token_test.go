package auth

import (
	"encoding/base64"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/media-auth-service/internal/domain"
)

func newTestKeySet(t *testing.T) *KeySet {
	t.Helper()
	keys, err := NewKeySet("current-secret", []string{"previous-secret"})
	require.NoError(t, err)
	return keys
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	keys := newTestKeySet(t)
	issuer := NewTokenIssuer(keys, 15, 30)
	validator := NewTokenValidator(keys)

	token, expiresAt, err := issuer.IssueAccessToken("acct-1", "alice@example.com", domain.RoleUser)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	claims, err := validator.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "acct-1", claims.Subject)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, domain.RoleUser, claims.Role)
}

func TestValidateExpiredToken(t *testing.T) {
	t.Parallel()

	keys := newTestKeySet(t)
	validator := NewTokenValidator(keys)

	// Sign a token that died a second ago. There is no leeway window: once
	// past expiry the token must be rejected.
	claims := &Claims{
		Email: "alice@example.com",
		Role:  domain.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Second)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(keys.SigningKey())
	require.NoError(t, err)

	_, err = validator.Validate(signed)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateWrongKey(t *testing.T) {
	t.Parallel()

	keys := newTestKeySet(t)
	issuer := NewTokenIssuer(keys, 15, 30)

	otherKeys, err := NewKeySet("a-different-secret", nil)
	require.NoError(t, err)
	validator := NewTokenValidator(otherKeys)

	token, _, err := issuer.IssueAccessToken("acct-1", "alice@example.com", domain.RoleUser)
	require.NoError(t, err)

	_, err = validator.Validate(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateAcceptsPreviousKey(t *testing.T) {
	t.Parallel()

	// Token signed with the old secret must still validate after rollover,
	// as long as the old secret stays in the accepted set.
	oldKeys, err := NewKeySet("previous-secret", nil)
	require.NoError(t, err)
	issuer := NewTokenIssuer(oldKeys, 15, 30)

	token, _, err := issuer.IssueAccessToken("acct-1", "alice@example.com", domain.RoleAdmin)
	require.NoError(t, err)

	validator := NewTokenValidator(newTestKeySet(t))
	claims, err := validator.Validate(token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestValidateMalformedToken(t *testing.T) {
	t.Parallel()

	validator := NewTokenValidator(newTestKeySet(t))
	_, err := validator.Validate("not.a.jwt")
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestValidateRejectsUnexpectedSigningMethod(t *testing.T) {
	t.Parallel()

	keys := newTestKeySet(t)
	validator := NewTokenValidator(keys)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = validator.Validate(unsigned)
	require.Error(t, err)
}

func TestGenerateRefreshTokenEntropy(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer(newTestKeySet(t), 15, 30)

	token, expiresAt, err := issuer.GenerateRefreshToken()
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now().Add(29*24*time.Hour)))

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 32)

	// An opaque token must not parse as a JWT.
	validator := NewTokenValidator(newTestKeySet(t))
	_, err = validator.Validate(token)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestGenerateRefreshTokenUnique(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer(newTestKeySet(t), 15, 30)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		token, _, err := issuer.GenerateRefreshToken()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup, "duplicate refresh token generated")
		seen[token] = struct{}{}
	}
}

func TestNewKeySetRequiresCurrentSecret(t *testing.T) {
	t.Parallel()

	_, err := NewKeySet("", nil)
	require.Error(t, err)

	keys, err := NewKeySet("only", []string{"", "old"})
	require.NoError(t, err)
	require.Len(t, keys.VerificationKeys(), 2)
	require.Equal(t, []byte("only"), keys.SigningKey())
}
