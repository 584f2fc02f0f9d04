package events

import "time"

// EventType enumerates supported security event identifiers.
type EventType string

const (
	EventAccountRegistered  EventType = "account_registered"
	EventLoginSucceeded     EventType = "login_succeeded"
	EventLoginFailed        EventType = "login_failed"
	EventTokensRotated      EventType = "tokens_rotated"
	EventTokenReuseDetected EventType = "token_reuse_detected"
	EventTokensRevoked      EventType = "tokens_revoked"
)

// Event represents a security-relevant occurrence emitted by the auth service.
// AccountID may be empty when the principal could not be resolved (e.g. a
// failed login for an unknown email).
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
	Addr   string `json:"addr,omitempty"`
}

// TokensRotatedPayload payload.
type TokensRotatedPayload struct {
	ChainID string `json:"chain_id"`
}

// TokenReuseDetectedPayload payload. Emitted when a revoked refresh token is
// redeemed again; the whole chain is revoked before this event fires.
type TokenReuseDetectedPayload struct {
	ChainID string `json:"chain_id"`
}

// TokensRevokedPayload payload.
type TokensRevokedPayload struct {
	Reason string `json:"reason"`
}
