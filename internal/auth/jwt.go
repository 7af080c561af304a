// Package auth reads the caller identity issued by the authentication service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"oktel-workforce/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	WorkerID string     `json:"worker_id"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() model.Identity {
	return model.Identity{WorkerID: c.WorkerID, Role: c.Role}
}

// ParseToken verifies an HS256 token. An empty issuer skips the issuer check.
func ParseToken(secret, issuer, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.WorkerID == "" {
		return nil, fmt.Errorf("%w: missing worker_id", ErrInvalidToken)
	}
	switch claims.Role {
	case model.RoleWorker, model.RoleManager:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// NewToken signs a token for id. Used by the token command and tests; production tokens
// come from the authentication service.
func NewToken(secret, issuer string, id model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		WorkerID: id.WorkerID,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.WorkerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
