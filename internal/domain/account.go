package domain

import "time"

// Role enumerates account roles carried inside access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// AccountStatus represents lifecycle states for an account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusDisabled AccountStatus = "DISABLED"
)

// Account is the domain model for a platform principal. Accounts are never
// hard-deleted; a disabled account keeps its email reserved.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a.Status == AccountStatusActive
}
