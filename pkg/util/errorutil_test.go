package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassesThrough(t *testing.T) {
	t.Parallel()

	original := NewEmailExists()
	mapped := ToDomainError(original)
	require.Equal(t, "EMAIL_EXISTS", mapped.Code)
	require.Equal(t, http.StatusConflict, mapped.HTTPStatus)
}

func TestToDomainErrorUnavailable(t *testing.T) {
	t.Parallel()

	// Store timeouts must surface as UNAVAILABLE, never as NOT_FOUND.
	wrapped := fmt.Errorf("query accounts: %w", context.DeadlineExceeded)
	mapped := ToDomainError(wrapped)
	require.Equal(t, "UNAVAILABLE", mapped.Code)
	require.Equal(t, http.StatusServiceUnavailable, mapped.HTTPStatus)
}

func TestToDomainErrorUnknownIsInternal(t *testing.T) {
	t.Parallel()

	mapped := ToDomainError(errors.New("boom"))
	require.Equal(t, "INTERNAL_ERROR", mapped.Code)
	require.Equal(t, http.StatusInternalServerError, mapped.HTTPStatus)
}

func TestInvalidCredentialsShape(t *testing.T) {
	t.Parallel()

	mapped := ToDomainError(NewInvalidCredentials())
	require.Equal(t, "INVALID_CREDENTIALS", mapped.Code)
	require.Equal(t, http.StatusUnauthorized, mapped.HTTPStatus)
	require.Equal(t, "authentication failed", mapped.Message)
}
