package auth

import (
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Validation failures. Callers must not forward the distinction to untrusted
// clients; it exists for logging and tests.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token signature invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// TokenValidator verifies access tokens using only the shared key set.
// It performs no I/O, which is what lets every downstream service authorize
// requests without calling back to the issuer. Expiry is checked with zero
// leeway: a token is either live or dead.
type TokenValidator struct {
	keys *KeySet
}

// NewTokenValidator builds a validator over the key set.
func NewTokenValidator(keys *KeySet) *TokenValidator {
	return &TokenValidator{keys: keys}
}

// Validate parses and verifies a compact JWT and returns its claims.
func (tv *TokenValidator) Validate(tokenStr string) (*Claims, error) {
	for _, key := range tv.keys.VerificationKeys() {
		claims, err := tv.parseWithKey(tokenStr, key)
		if err == nil {
			return claims, nil
		}
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			// Signature matched this key; no point trying the rest.
			return nil, ErrTokenExpired
		}
	}
	return nil, ErrTokenInvalid
}

func (tv *TokenValidator) parseWithKey(tokenStr string, key []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
