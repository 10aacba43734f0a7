package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	return Config{Secret: "secret", Issuer: "library-management-system", Audience: "library-users", TTL: time.Hour}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testConfig())
	p := Principal{ID: "u1", Name: "Ann", Email: "ann@example.com", Role: "Member"}

	token, exp, err := m.Issue(p)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testConfig())
	token, _, err := m.Issue(Principal{ID: "u1", Role: "Member"})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.Secret = "other"
		_, err := NewTokenManager(cfg).Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong audience", func(t *testing.T) {
		cfg := testConfig()
		cfg.Audience = "someone-else"
		_, err := NewTokenManager(cfg).Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("expired", func(t *testing.T) {
		late := NewTokenManager(testConfig())
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "secret1"))
	assert.False(t, VerifyPassword(hash, "secret2"))
}

func TestAuthContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := SetAuthContext(context.Background(), Principal{ID: "u1"})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.ID)
}
