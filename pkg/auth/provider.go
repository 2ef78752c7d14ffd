// Package auth decides whether a request may reach an action: the protocol
// check, the provider presence check and the role check.
package auth

import (
	"context"
	"fmt"
	"strings"
)

const providerLogPrefix = "auth:provider"

// Provider resolves caller roles and answers role inclusion questions.
// Unknown tokens or keys yield no roles and no error.
type Provider interface {
	RolesForToken(ctx context.Context, token string) ([]string, error)
	RolesForKey(ctx context.Context, key string) ([]string, error)
	IsRoleAuthorized(callerRole, requiredRole string) bool
}

// TokenVerifier extracts roles from a session token.
type TokenVerifier interface {
	Roles(ctx context.Context, token string) ([]string, error)
}

// KeyStore maps API keys to roles. Unknown keys yield nil roles.
type KeyStore interface {
	RolesForKey(ctx context.Context, key string) ([]string, error)
}

// StaticTokens is a fixed token to roles table.
type StaticTokens map[string][]string

// Roles implements TokenVerifier.
func (s StaticTokens) Roles(_ context.Context, token string) ([]string, error) {
	return s[token], nil
}

// RoleProvider is the Provider built from a token verifier, a key store and
// a role hierarchy. Either source may be nil; calls against a missing
// source fail.
type RoleProvider struct {
	tokens    TokenVerifier
	keys      KeyStore
	hierarchy *Hierarchy
}

// NewRoleProviderParams holds parameters for NewRoleProvider.
type NewRoleProviderParams struct {
	Tokens    TokenVerifier
	Keys      KeyStore
	Hierarchy *Hierarchy
}

// NewRoleProvider creates a RoleProvider. A nil hierarchy means exact role
// matches only.
func NewRoleProvider(params NewRoleProviderParams) *RoleProvider {
	h := params.Hierarchy
	if h == nil {
		h = NewHierarchy(nil)
	}
	return &RoleProvider{tokens: params.Tokens, keys: params.Keys, hierarchy: h}
}

// RolesForToken implements Provider.
func (p *RoleProvider) RolesForToken(ctx context.Context, token string) ([]string, error) {
	if p.tokens == nil {
		return nil, fmt.Errorf("%s - token verification is not configured", providerLogPrefix)
	}
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return p.tokens.Roles(ctx, token)
}

// RolesForKey implements Provider.
func (p *RoleProvider) RolesForKey(ctx context.Context, key string) ([]string, error) {
	if p.keys == nil {
		return nil, fmt.Errorf("%s - key store is not configured", providerLogPrefix)
	}
	if strings.TrimSpace(key) == "" {
		return nil, nil
	}
	return p.keys.RolesForKey(ctx, key)
}

// IsRoleAuthorized implements Provider using the hierarchy.
func (p *RoleProvider) IsRoleAuthorized(callerRole, requiredRole string) bool {
	return p.hierarchy.Includes(callerRole, requiredRole)
}
