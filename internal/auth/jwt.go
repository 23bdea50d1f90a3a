package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gosuda/boardsync/internal/domain"
)

const issuer = "boardsync"

// Claims is the bearer token payload. The subject is carried in uid so that
// ids which are not UUIDs are accepted as-is.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Identity returns the transport identity described by the claims. A token
// without a role is an editor.
func (c *Claims) Identity() domain.Identity {
	role := domain.Role(c.Role)
	if role == "" {
		role = domain.RoleEditor
	}
	return domain.Identity{UserID: c.UserID, Name: c.Name, Role: role}
}

// IssueToken creates a signed HS256 access token for id.
func IssueToken(secret string, id domain.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth.IssueToken: user id is required")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		UserID: id.UserID,
		Name:   id.Name,
		Role:   string(id.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}
