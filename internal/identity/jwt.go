package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload issued by the league application's auth service.
type Claims struct {
	Nickname  string `json:"nickname"`
	Team      string `json:"team"`
	Moderator bool   `json:"moderator"`
	AccountID int64  `json:"account_id"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for tokens signed with the given secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve parses and verifies the token. Invalid, expired, or wrongly
// signed tokens resolve to (nil, nil): the connection proceeds as
// anonymous. Only configuration-level problems produce an error.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, nil
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil
	}
	if claims.AccountID == 0 {
		return nil, nil
	}

	return &Identity{
		AccountID: claims.AccountID,
		Nickname:  claims.Nickname,
		Team:      claims.Team,
		Moderator: claims.Moderator,
	}, nil
}
