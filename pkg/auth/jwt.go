package auth

import (
	"context"
	"errors"
	"time"

	apperrors "roomres/pkg/errors"
	"roomres/pkg/model"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 1 * time.Hour

// IdentityOracle resolves the current facts about a user.
type IdentityOracle interface {
	ResolveUser(ctx context.Context, username string) (*model.UserFacts, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Caller, error)
}

// Claims are the token claims the bookings service issues and accepts. The
// role claim is informational; the authoritative role always comes from the
// identity oracle.
type Claims struct {
	Role model.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 bearer tokens and resolves the subject
// through the identity oracle so that role changes and deactivation take
// effect immediately.
type JWTAuthenticator struct {
	secret []byte
	users  IdentityOracle
	parser *jwt.Parser
}

func NewJWTAuthenticator(secret string, users IdentityOracle) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		users:  users,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (*model.Caller, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Missing bearer token")
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("Token has expired")
		}
		return nil, apperrors.Unauthorized("Invalid token")
	}
	if claims.Subject == "" {
		return nil, apperrors.Unauthorized("Token has no subject")
	}

	facts, err := a.users.ResolveUser(ctx, claims.Subject)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeUserNotFound) {
			return nil, apperrors.Unauthorized("Unknown user")
		}
		return nil, err
	}
	if !facts.IsActive {
		return nil, apperrors.Unauthorized("User account is inactive")
	}

	username := facts.Username
	if username == "" {
		username = claims.Subject
	}
	return &model.Caller{Username: username, Role: facts.Role}, nil
}

// IssueToken mints a token for username signed with secret.
func IssueToken(secret, username string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
