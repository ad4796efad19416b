package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

// ErrInvalidToken is returned for missing, malformed, expired or revoked tokens.
var ErrInvalidToken = httpx.NewError(httpx.ErrUnauthorized, "auth: invalid or expired token")

const issuer = "kasir"

// Claims is the JWT payload.
type Claims struct {
	UserID   int64       `json:"id"`
	Username string      `json:"username,omitempty"`
	Role     shared.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the request identity.
func (c Claims) Identity() shared.Identity {
	id := shared.Identity{UserID: c.UserID, Username: c.Username, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager returns a TokenManager. The secret must not be empty.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth: empty token secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the token lifetime.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Issue signs a token for the user.
func (m *TokenManager) Issue(id shared.Identity) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   fmt.Sprint(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature and expiry of raw.
func (m *TokenManager) Parse(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, ok := shared.ParseRole(string(claims.Role)); !ok || claims.UserID <= 0 || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
