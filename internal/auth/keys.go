package auth

import (
	"errors"

	"github.com/spec-kit/media-auth-service/internal/config"
)

// KeySet holds the HMAC key material shared by every service that validates
// access tokens. It is built once at startup and never mutated afterwards.
// The first key signs new tokens; all keys verify, so a rollover deploy can
// keep the previous secret in the set until old tokens age out.
type KeySet struct {
	keys [][]byte
}

// NewKeySet builds a key set from the current secret plus any previous ones.
func NewKeySet(current string, previous []string) (*KeySet, error) {
	if current == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	keys := make([][]byte, 0, len(previous)+1)
	keys = append(keys, []byte(current))
	for _, s := range previous {
		if s != "" {
			keys = append(keys, []byte(s))
		}
	}
	return &KeySet{keys: keys}, nil
}

// NewKeySetFromConfig builds the key set from auth configuration.
func NewKeySetFromConfig(cfg config.AuthConfig) (*KeySet, error) {
	return NewKeySet(cfg.JWTSecret, cfg.JWTPreviousSecrets)
}

// SigningKey returns the key used to sign new tokens.
func (ks *KeySet) SigningKey() []byte {
	return ks.keys[0]
}

// VerificationKeys returns all currently accepted keys, signing key first.
func (ks *KeySet) VerificationKeys() [][]byte {
	return ks.keys
}
