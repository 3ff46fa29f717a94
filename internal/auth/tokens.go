package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds embedded in claims so a refresh token can never be used as an
// access token or vice versa.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned when a token fails signature, expiry, or type
// validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT claims structure for Taskline tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenConfig holds bearer-token settings.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// DefaultTokenConfig returns a TokenConfig with sensible defaults.
func DefaultTokenConfig(secret []byte) TokenConfig {
	return TokenConfig{
		Secret:     secret,
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "taskline",
	}
}

// TokenManager issues and verifies HS256 access/refresh token pairs.
type TokenManager struct {
	cfg TokenConfig
}

// NewTokenManager creates a TokenManager. The secret must be at least 32
// bytes; shorter secrets are rejected rather than warned about.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{cfg: cfg}, nil
}

// TokenPair is an access/refresh token pair returned to clients.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// IssuePair creates a new access/refresh pair for the given user.
func (m *TokenManager) IssuePair(userID uuid.UUID) (*TokenPair, error) {
	access, err := m.sign(userID, tokenTypeAccess, m.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(userID, tokenTypeRefresh, m.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID.String(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.cfg.Issuer,
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.cfg.Secret)
}

// VerifyAccess validates an access token and returns the user ID it carries.
func (m *TokenManager) VerifyAccess(tokenString string) (uuid.UUID, error) {
	return m.verify(tokenString, tokenTypeAccess)
}

// VerifyRefresh validates a refresh token and returns the user ID it carries.
func (m *TokenManager) VerifyRefresh(tokenString string) (uuid.UUID, error) {
	return m.verify(tokenString, tokenTypeRefresh)
}

func (m *TokenManager) verify(tokenString, wantType string) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// ExtractBearerToken pulls the token out of an Authorization header value.
// Returns an empty string if the header is not a bearer credential.
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
