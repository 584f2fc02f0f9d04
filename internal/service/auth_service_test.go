package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/media-auth-service/internal/auth"
	"github.com/spec-kit/media-auth-service/internal/config"
	"github.com/spec-kit/media-auth-service/internal/domain"
	"github.com/spec-kit/media-auth-service/internal/events"
	"github.com/spec-kit/media-auth-service/internal/repository"
)

// fakeAccountRepo is an in-memory AccountRepository with the same uniqueness
// semantics as the Postgres implementation.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	nextID   int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	r.nextID++
	account.ID = fmt.Sprintf("acct-%d", r.nextID)
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if strings.EqualFold(account.Email, email) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = time.Now()
	return nil
}

// fakeRefreshRepo mirrors the transactional rotate semantics of the Postgres
// repository: the mutex plays the role of the row lock, so concurrent
// rotations of the same token admit exactly one winner.
type fakeRefreshRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{rows: make(map[string]*domain.RefreshToken)}
}

func (r *fakeRefreshRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.CreatedAt = time.Now()
	copied := *token
	r.rows[token.Token] = &copied
	return nil
}

func (r *fakeRefreshRepo) FindActive(_ context.Context, tokenStr string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenStr]
	if !ok || !row.Usable(time.Now()) {
		return nil, repository.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *fakeRefreshRepo) Rotate(_ context.Context, oldToken, newToken string, expiresAt time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[oldToken]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if row.Revoked {
		for _, other := range r.rows {
			if other.ChainID == row.ChainID {
				other.Revoked = true
			}
		}
		copied := *row
		return &copied, repository.ErrReuseDetected
	}
	if !time.Now().Before(row.ExpiresAt) {
		return nil, repository.ErrExpired
	}

	row.Revoked = true
	successor := &domain.RefreshToken{
		Token:     newToken,
		AccountID: row.AccountID,
		ChainID:   row.ChainID,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	r.rows[newToken] = successor
	copied := *successor
	return &copied, nil
}

func (r *fakeRefreshRepo) Revoke(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[token]; ok {
		row.Revoked = true
	}
	return nil
}

func (r *fakeRefreshRepo) RevokeChain(_ context.Context, chainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ChainID == chainID {
			row.Revoked = true
		}
	}
	return nil
}

func (r *fakeRefreshRepo) RevokeAllForAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.AccountID == accountID {
			row.Revoked = true
		}
	}
	return nil
}

func newTestService(t *testing.T) (*AuthService, *fakeAccountRepo, *fakeRefreshRepo, events.Dispatcher) {
	t.Helper()
	keys, err := auth.NewKeySet("test-secret", nil)
	require.NoError(t, err)

	accounts := newFakeAccountRepo()
	tokens := newFakeRefreshRepo()
	dispatcher := events.NewInMemoryDispatcher()

	svc := NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, AuthDependencies{
		AccountRepo:      accounts,
		RefreshTokenRepo: tokens,
		Issuer:           auth.NewTokenIssuer(keys, 15, 30),
		Dispatcher:       dispatcher,
	})
	return svc, accounts, tokens, dispatcher
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "Alice@Example.com", "secret1", "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", account.Email)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	_, _, err = svc.Login(ctx, "alice@example.com", "secret1", "10.0.0.1")
	require.NoError(t, err)

	// Case-insensitive lookup.
	_, _, err = svc.Login(ctx, "ALICE@example.com", "secret1", "10.0.0.1")
	require.NoError(t, err)
}

func TestLoginInvalidCredentialsUniform(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	_, _, wrongPassword := svc.Login(ctx, "alice@example.com", "wrong", "10.0.0.1")
	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)

	_, _, unknownEmail := svc.Login(ctx, "nobody@example.com", "secret1", "10.0.0.1")
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "ALICE@example.com", "other", "Imposter")
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestRefreshRotates(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.NotEmpty(t, rotated.AccessToken)

	// The consumed token is dead.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshReuseRevokesChain(t *testing.T) {
	t.Parallel()

	svc, _, _, dispatcher := newTestService(t)
	ctx := context.Background()

	var mu sync.Mutex
	reuseEvents := 0
	dispatcher.Subscribe(events.EventTokenReuseDetected, func(context.Context, events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		reuseEvents++
		return nil
	})

	_, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Redeeming the consumed token again is the theft signal: it must fail
	// and take the live successor down with it.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Both dead-token redemptions raise the signal: the original reuse and
	// the attempt on the chain-revoked successor.
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, reuseEvents)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	winners := make(chan *domain.TokenPair, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rotated, err := svc.Refresh(ctx, pair.RefreshToken)
			if err == nil {
				winners <- rotated
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	close(winners)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, ErrInvalidRefreshToken)
		}
	}
	require.Equal(t, 1, successes)
}

func TestLogoutIdempotent(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "never-issued"))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshExpiredToken(t *testing.T) {
	t.Parallel()

	svc, _, tokens, _ := newTestService(t)
	ctx := context.Background()

	account, _, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	stale := &domain.RefreshToken{
		Token:     "stale-token",
		AccountID: account.ID,
		ChainID:   "chain-1",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, tokens.Create(ctx, stale))

	_, err = svc.Refresh(ctx, "stale-token")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshDisabledAccount(t *testing.T) {
	t.Parallel()

	svc, accounts, _, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	accounts.mu.Lock()
	accounts.accounts[account.ID].Status = domain.AccountStatusDisabled
	accounts.mu.Unlock()

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = svc.Login(ctx, "alice@example.com", "secret1", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	require.ErrorIs(t, svc.ChangePassword(ctx, account.ID, "wrong", "secret2"), ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(ctx, account.ID, "secret1", "secret2"))

	_, _, err = svc.Login(ctx, "alice@example.com", "secret1", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "alice@example.com", "secret2", "10.0.0.1")
	require.NoError(t, err)

	// All pre-change sessions are gone.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}
