package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestIssueAndVerifyPair(t *testing.T) {
	m, err := NewTokenManager(DefaultTokenConfig(testSecret))
	require.NoError(t, err)

	userID := uuid.New()
	pair, err := m.IssuePair(userID)
	require.NoError(t, err)

	got, err := m.VerifyAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	got, err = m.VerifyRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	m, err := NewTokenManager(DefaultTokenConfig(testSecret))
	require.NoError(t, err)

	pair, err := m.IssuePair(uuid.New())
	require.NoError(t, err)

	_, err = m.VerifyAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.VerifyRefresh(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	m1, err := NewTokenManager(DefaultTokenConfig(testSecret))
	require.NoError(t, err)
	m2, err := NewTokenManager(DefaultTokenConfig([]byte("another-secret-another-secret-32")))
	require.NoError(t, err)

	pair, err := m1.IssuePair(uuid.New())
	require.NoError(t, err)

	_, err = m2.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := DefaultTokenConfig(testSecret)
	cfg.AccessTTL = -time.Minute
	m := &TokenManager{cfg: cfg}

	token, err := m.sign(uuid.New(), tokenTypeAccess, cfg.AccessTTL)
	require.NoError(t, err)

	_, err = m.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearerToken("bearer abc"))
	assert.Equal(t, "", ExtractBearerToken("Basic abc"))
	assert.Equal(t, "", ExtractBearerToken(""))
	assert.Equal(t, "", ExtractBearerToken("Bearer"))
}
