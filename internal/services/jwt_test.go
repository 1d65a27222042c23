package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWT() *JWTService {
	return NewJWTService("test-secret", 15*time.Minute, 24*time.Hour)
}

func TestJWTService_GenerateTokenPair(t *testing.T) {
	svc := newTestJWT()

	pair, err := svc.GenerateTokenPair(uuid.New(), "maria@example.com")

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, int64(15*60), pair.ExpiresIn)
	assert.Equal(t, 24*time.Hour, svc.RefreshExpiry())
}

func TestJWTService_ValidateAccessToken_Valid(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "maria@example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "maria@example.com", claims.Email)
	assert.Equal(t, "reclama-api", claims.Issuer)
}

func TestJWTService_ValidateAccessToken_WrongSecret(t *testing.T) {
	other := NewJWTService("other-secret", 15*time.Minute, 24*time.Hour)

	pair, err := other.GenerateTokenPair(uuid.New(), "maria@example.com")
	require.NoError(t, err)

	_, err = newTestJWT().ValidateAccessToken(pair.AccessToken)

	assert.ErrorContains(t, err, "failed to parse token")
}

func TestJWTService_ValidateAccessToken_Expired(t *testing.T) {
	svc := newTestJWT()
	now := time.Now()
	svc.now = func() time.Time { return now }

	pair, err := svc.GenerateTokenPair(uuid.New(), "maria@example.com")
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = svc.ValidateAccessToken(pair.AccessToken)

	assert.ErrorContains(t, err, "failed to parse token")
}

func TestJWTService_ValidateAccessToken_Malformed(t *testing.T) {
	svc := newTestJWT()

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.ValidateAccessToken(token)
		assert.Error(t, err, token)
	}
}

func TestJWTService_TokensAreNotInterchangeable(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "maria@example.com")
	require.NoError(t, err)
	confirm, err := svc.GenerateConfirmationToken(userID)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.Error(t, err)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.Error(t, err)

	_, err = svc.ValidateRefreshToken(confirm)
	assert.Error(t, err)

	_, err = svc.ValidateConfirmationToken(pair.RefreshToken)
	assert.Error(t, err)
}

func TestJWTService_ValidateRefreshToken_Valid(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()

	pair, err := svc.GenerateTokenPair(userID, "maria@example.com")
	require.NoError(t, err)

	got, err := svc.ValidateRefreshToken(pair.RefreshToken)

	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTService_ConfirmationToken(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()

	token, err := svc.GenerateConfirmationToken(userID)
	require.NoError(t, err)

	got, err := svc.ValidateConfirmationToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTService_RefreshTokensAreUnique(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()

	a, err := svc.GenerateTokenPair(userID, "maria@example.com")
	require.NoError(t, err)
	b, err := svc.GenerateTokenPair(userID, "maria@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, a.RefreshToken, b.RefreshToken)
}

func TestHashToken(t *testing.T) {
	h := HashToken("token")

	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("token"))
	assert.NotEqual(t, h, HashToken("other"))
}
