package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestTokensExpire(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	issued := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }

	token, expiresAt, err := tokens.Issue(User{ID: 4, Username: "rosa", Role: shared.RoleSeller})
	require.NoError(t, err)
	require.Equal(t, issued.Add(time.Hour), expiresAt)

	tokens.now = func() time.Time { return issued.Add(30 * time.Minute) }
	actor, err := tokens.Parse(token)
	require.NoError(t, err)
	require.Equal(t, shared.Actor{ID: 4, Username: "rosa", Role: shared.RoleSeller}, actor)

	tokens.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = tokens.Parse(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
