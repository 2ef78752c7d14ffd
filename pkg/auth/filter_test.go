package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
	"github.com/morezero/action-dispatcher/pkg/value"
)

func newRequest(t *testing.T, src request.Source, meta map[string]string) *request.Request {
	t.Helper()
	m := value.Mapping()
	for k, v := range meta {
		m = m.With(k, value.String(v))
	}
	req, err := request.New(request.Params{Path: "app.users.get", Source: src, Meta: m})
	if err != nil {
		t.Fatalf("auth:filter_test - request.New failed: %v", err)
	}
	return req
}

func testProvider() *RoleProvider {
	return NewRoleProvider(NewRoleProviderParams{
		Tokens: StaticTokens{
			"dev-token":   {"dev"},
			"admin-token": {"admin"},
			"guest-token": {"guest"},
			"blank-token": {""},
		},
		Keys:      NewMemoryKeyStore(map[string][]string{"k-dev": {"dev"}}),
		Hierarchy: NewHierarchy(map[string][]string{"admin": {"dev"}, "dev": {"viewer"}}),
	})
}

func codeOf(err error) int {
	var e *result.Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return 0
	}
	return -1
}

func TestCheckProtocol(t *testing.T) {
	meta := action.Metadata{Area: "app", Name: "users", Action: "get", Protocol: action.Protocol("cli")}
	err := CheckProtocol(newRequest(t, request.SourceWeb, nil), meta)
	if codeOf(err) != result.CodeNotFound {
		t.Errorf("auth:filter_test - web on cli action: err = %v, want 404", err)
	}
	if err := CheckProtocol(newRequest(t, request.SourceCLI, nil), meta); err != nil {
		t.Errorf("auth:filter_test - cli on cli action: err = %v", err)
	}
	meta.Protocol = action.AnyProtocol
	if err := CheckProtocol(newRequest(t, request.SourceQueue, nil), meta); err != nil {
		t.Errorf("auth:filter_test - any protocol: err = %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	base := action.Metadata{Area: "app", Name: "users", Action: "get"}
	with := func(roles action.RoleSpec, mode action.AuthMode) action.Metadata {
		m := base
		m.Roles, m.AuthMode = roles, mode
		return m
	}
	tests := []struct {
		name     string
		provider Provider
		meta     action.Metadata
		reqMeta  map[string]string
		wantCode int
		wantMsg  string
	}{
		{"no auth ignores provider", nil, with(action.Role("admin"), action.NoAuth), nil, 0, ""},
		{"missing provider", nil, with(action.AnyRole, action.AppRole), map[string]string{"token": "dev-token"}, 401, result.MsgProviderNotSet},
		{"none role", testProvider(), with(action.NoRoles, action.AppRole), nil, 0, ""},
		{"any role with dev", testProvider(), with(action.AnyRole, action.AppRole), map[string]string{"token": "dev-token"}, 0, ""},
		{"any role without token", testProvider(), with(action.AnyRole, action.AppRole), nil, 401, result.MsgUnauthorized},
		{"any role with blank role", testProvider(), with(action.AnyRole, action.AppRole), map[string]string{"token": "blank-token"}, 401, result.MsgUnauthorized},
		{"specific exact", testProvider(), with(action.Role("dev"), action.AppRole), map[string]string{"token": "dev-token"}, 0, ""},
		{"specific via ancestor", testProvider(), with(action.Role("dev"), action.AppRole), map[string]string{"token": "admin-token"}, 0, ""},
		{"specific transitive", testProvider(), with(action.Role("viewer"), action.AppRole), map[string]string{"token": "admin-token"}, 0, ""},
		{"specific narrower denied", testProvider(), with(action.Role("admin"), action.AppRole), map[string]string{"token": "dev-token"}, 401, result.MsgUnauthorized},
		{"specific unrelated denied", testProvider(), with(action.Role("dev"), action.AppRole), map[string]string{"token": "guest-token"}, 401, result.MsgUnauthorized},
		{"key role", testProvider(), with(action.Role("dev"), action.KeyRole), map[string]string{"api-key": "k-dev"}, 0, ""},
		{"key role ignores token", testProvider(), with(action.Role("dev"), action.KeyRole), map[string]string{"token": "dev-token"}, 401, result.MsgUnauthorized},
		{"unknown key", testProvider(), with(action.AnyRole, action.KeyRole), map[string]string{"api-key": "nope"}, 401, result.MsgUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.provider)
			err := f.Authorize(context.Background(), newRequest(t, request.SourceWeb, tt.reqMeta), tt.meta)
			if got := codeOf(err); got != tt.wantCode {
				t.Fatalf("auth:filter_test - code = %d (%v), want %d", got, err, tt.wantCode)
			}
			if tt.wantMsg != "" {
				var e *result.Error
				errors.As(err, &e)
				if e.Message != tt.wantMsg {
					t.Errorf("auth:filter_test - message = %q, want %q", e.Message, tt.wantMsg)
				}
			}
		})
	}
}

type failingTokens struct{}

func (failingTokens) Roles(context.Context, string) ([]string, error) {
	return nil, errors.New("verifier down")
}

func TestAuthorize_LookupErrorDenies(t *testing.T) {
	f := NewFilter(NewRoleProvider(NewRoleProviderParams{Tokens: failingTokens{}}))
	meta := action.Metadata{Area: "app", Name: "users", Action: "get", Roles: action.AnyRole, AuthMode: action.AppRole}
	err := f.Authorize(context.Background(), newRequest(t, request.SourceWeb, map[string]string{"token": "x"}), meta)
	if codeOf(err) != result.CodeUnauthorized {
		t.Errorf("auth:filter_test - err = %v, want 401", err)
	}
}

func TestCheck_ProtocolBeforeAuth(t *testing.T) {
	f := NewFilter(nil)
	meta := action.Metadata{Area: "app", Name: "users", Action: "get", Roles: action.AnyRole, AuthMode: action.AppRole, Protocol: action.Protocol("cli")}
	err := f.Check(context.Background(), newRequest(t, request.SourceWeb, nil), meta)
	if codeOf(err) != result.CodeNotFound {
		t.Errorf("auth:filter_test - err = %v, want protocol failure first", err)
	}
}

func TestHierarchy(t *testing.T) {
	h := NewHierarchy(map[string][]string{"Admin": {"dev"}, "dev": {"viewer"}, "viewer": {"admin"}})
	if !h.Includes("admin", "viewer") {
		t.Error("auth:filter_test - admin should include viewer")
	}
	if !h.Includes("DEV", "dev") {
		t.Error("auth:filter_test - role names are case-insensitive")
	}
	if h.Includes("", "dev") || h.Includes("dev", "") {
		t.Error("auth:filter_test - empty roles never match")
	}
	if h.Includes("dev", "ops") {
		t.Error("auth:filter_test - cycle must terminate without a match")
	}
	if got := NewHierarchy(map[string][]string{"admin": {"dev"}}).Ancestors("dev"); len(got) != 1 || got[0] != "admin" {
		t.Errorf("auth:filter_test - Ancestors(dev) = %v", got)
	}
}
