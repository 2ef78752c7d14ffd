package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const logPrefix = "auth:filter"

// Filter applies the protocol and authorization checks. It holds no
// per-call state and is safe for concurrent use.
type Filter struct {
	provider Provider
}

// NewFilter creates a filter. provider may be nil, in which case every
// action that needs authorization is refused.
func NewFilter(provider Provider) *Filter {
	return &Filter{provider: provider}
}

// Check runs CheckProtocol then Authorize.
func (f *Filter) Check(ctx context.Context, req *request.Request, meta action.Metadata) error {
	if err := CheckProtocol(req, meta); err != nil {
		return err
	}
	return f.Authorize(ctx, req, meta)
}

// CheckProtocol hides an action from sources it is not declared for by
// reporting it as not found.
func CheckProtocol(req *request.Request, meta action.Metadata) error {
	if meta.Protocol.Kind != action.ProtocolSpecific {
		return nil
	}
	if req.Source().String() != meta.Protocol.Name {
		return result.NotFound(result.MsgNotFound)
	}
	return nil
}

// Authorize checks provider presence and the caller's roles.
func (f *Filter) Authorize(ctx context.Context, req *request.Request, meta action.Metadata) error {
	mode := meta.AuthMode
	if mode == action.AuthInherit || mode == action.NoAuth {
		return nil
	}
	if f.provider == nil {
		return result.Unauthorized(result.MsgProviderNotSet)
	}
	if meta.Roles.Kind == action.RoleNone {
		return nil
	}

	roles := f.callerRoles(ctx, req, mode)
	switch meta.Roles.Kind {
	case action.RoleAny:
		if len(roles) > 0 {
			return nil
		}
	case action.RoleSpecific:
		for _, r := range roles {
			if f.provider.IsRoleAuthorized(r, meta.Roles.Name) {
				return nil
			}
		}
	}
	slog.Debug(fmt.Sprintf("%s - denied %s for roles %v (requires %s)", logPrefix, meta.Path(), roles, meta.Roles))
	return result.Unauthorized(result.MsgUnauthorized)
}

// callerRoles looks up the caller's non-empty roles. Lookup failures count
// as no roles.
func (f *Filter) callerRoles(ctx context.Context, req *request.Request, mode action.AuthMode) []string {
	var (
		roles []string
		err   error
	)
	switch mode {
	case action.AppRole:
		roles, err = f.provider.RolesForToken(ctx, req.Token())
	case action.KeyRole:
		roles, err = f.provider.RolesForKey(ctx, req.APIKey())
	}
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - role lookup failed for %s: %v", logPrefix, req.Path(), err))
		return nil
	}
	out := roles[:0:0]
	for _, r := range roles {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}
