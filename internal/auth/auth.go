package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"permission-gate/internal/metadata"
)

// Claims represents the session token claims of an admin user.
type Claims struct {
	jwt.RegisteredClaims
	RoleID      int64    `json:"role_id"`
	RenderingID int64    `json:"rendering_id"`
	Roles       []string `json:"roles,omitempty"`
}

const AccessTokenTTL = 15 * time.Minute

// GenerateAccessToken creates a signed session token for user.
func GenerateAccessToken(user *metadata.UserContext, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = AccessTokenTTL
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RoleID:      user.RoleID,
		RenderingID: user.RenderingID,
		Roles:       user.Roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates and parses a session token, returning the claims.
func ParseAccessToken(tokenStr string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// UserContext converts the claims to the request user.
func (c *Claims) UserContext() *metadata.UserContext {
	return &metadata.UserContext{
		ID:          c.Subject,
		RoleID:      c.RoleID,
		RenderingID: c.RenderingID,
		Roles:       c.Roles,
	}
}
