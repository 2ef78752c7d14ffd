package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtLogPrefix = "auth:jwt"

// ErrNoSecret is returned when a JWT verifier is built without a secret.
var ErrNoSecret = errors.New("auth: jwt secret is empty")

// Claims carries the caller's roles. Role is accepted for tokens issued
// with a single role claim.
type Claims struct {
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AllRoles merges Role and Roles.
func (c *Claims) AllRoles() []string {
	out := make([]string, 0, len(c.Roles)+1)
	if c.Role != "" {
		out = append(out, c.Role)
	}
	return append(out, c.Roles...)
}

// JWTVerifier verifies HS256 tokens and reads their role claims.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewJWTVerifierParams holds parameters for NewJWTVerifier.
type NewJWTVerifierParams struct {
	Secret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
	Leeway time.Duration
}

// NewJWTVerifier creates a verifier.
func NewJWTVerifier(params NewJWTVerifierParams) (*JWTVerifier, error) {
	if len(params.Secret) == 0 {
		return nil, ErrNoSecret
	}
	return &JWTVerifier{secret: params.Secret, issuer: params.Issuer, leeway: params.Leeway}, nil
}

// Roles implements TokenVerifier.
func (v *JWTVerifier) Roles(_ context.Context, token string) ([]string, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid token: %w", jwtLogPrefix, err)
	}
	return claims.AllRoles(), nil
}

// Issue signs a token for subject carrying roles. A zero ttl means no expiry.
func (v *JWTVerifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   v.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
