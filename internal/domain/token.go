package domain

import "time"

// RefreshToken is a persisted opaque credential. Tokens belonging to the same
// login session share a chain id; rotation revokes the old row and inserts its
// successor on the same chain. Revoked is monotonic: once true it never flips
// back.
type RefreshToken struct {
	Token     string
	AccountID string
	ChainID   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Usable reports whether the token can still be redeemed at the given instant.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// TokenPair bundles the credentials returned to a client after
// registration, login or refresh. ExpiresAt refers to the access token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
