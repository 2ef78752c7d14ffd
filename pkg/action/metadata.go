// Package action declares callable actions: their metadata, parameter
// shapes and the typed handles that run them.
package action

import (
	"fmt"
	"strings"
)

// Role and protocol spellings used in declarations.
const (
	AnyToken    = "*"
	ParentToken = "@parent"
	NoneToken   = "none"
)

// RoleKind enumerates RoleSpec variants.
type RoleKind int

const (
	RoleNone RoleKind = iota
	RoleAny
	RoleSpecific
	RoleParent
)

// RoleSpec is the role requirement of an action.
type RoleSpec struct {
	Kind RoleKind
	Name string
}

var (
	NoRoles     = RoleSpec{Kind: RoleNone}
	AnyRole     = RoleSpec{Kind: RoleAny}
	ParentRoles = RoleSpec{Kind: RoleParent}
)

// Role requires a specific role (or a role that includes it).
func Role(name string) RoleSpec {
	return RoleSpec{Kind: RoleSpecific, Name: name}
}

// ParseRoleSpec reads "", "none", "*", "@parent" or a role name.
func ParseRoleSpec(s string) RoleSpec {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", NoneToken:
		return NoRoles
	case AnyToken:
		return AnyRole
	case ParentToken:
		return ParentRoles
	}
	return Role(s)
}

func (r RoleSpec) String() string {
	switch r.Kind {
	case RoleAny:
		return AnyToken
	case RoleParent:
		return ParentToken
	case RoleSpecific:
		return r.Name
	}
	return NoneToken
}

// ProtocolKind enumerates ProtocolSpec variants.
type ProtocolKind int

const (
	ProtocolAny ProtocolKind = iota
	ProtocolSpecific
	ProtocolParent
)

// ProtocolSpec restricts which source may invoke an action.
type ProtocolSpec struct {
	Kind ProtocolKind
	Name string
}

var (
	AnyProtocol    = ProtocolSpec{Kind: ProtocolAny}
	ParentProtocol = ProtocolSpec{Kind: ProtocolParent}
)

// Protocol restricts an action to one protocol name (cli, web, queue, file).
func Protocol(name string) ProtocolSpec {
	return ProtocolSpec{Kind: ProtocolSpecific, Name: strings.ToLower(name)}
}

// ParseProtocolSpec reads "", "*", "@parent" or a protocol name.
func ParseProtocolSpec(s string) ProtocolSpec {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", AnyToken:
		return AnyProtocol
	case ParentToken:
		return ParentProtocol
	}
	return Protocol(s)
}

func (p ProtocolSpec) String() string {
	switch p.Kind {
	case ProtocolSpecific:
		return p.Name
	case ProtocolParent:
		return ParentToken
	}
	return AnyToken
}

// AuthMode selects how caller roles are obtained.
type AuthMode string

const (
	// AuthInherit takes the group default; without one it behaves as NoAuth.
	AuthInherit AuthMode = ""
	NoAuth      AuthMode = "none"
	AppRole     AuthMode = "app-role"
	KeyRole     AuthMode = "key-role"
)

// ParseAuthMode reads an auth mode name.
func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case AuthInherit, NoAuth, AppRole, KeyRole:
		return m, nil
	case "@parent":
		return AuthInherit, nil
	}
	return AuthInherit, fmt.Errorf("unknown auth mode %q", s)
}

// Group holds the defaults that actions under (Area, Name) inherit through
// ParentRoles, ParentProtocol and AuthInherit.
type Group struct {
	Area        string
	Name        string
	Roles       RoleSpec
	Protocol    ProtocolSpec
	AuthMode    AuthMode
	Verb        string
	Description string
}

// Metadata describes one callable action.
type Metadata struct {
	Area        string
	Name        string
	Action      string
	Roles       RoleSpec
	Protocol    ProtocolSpec
	Verb        string
	AuthMode    AuthMode
	Params      []ParamSpec
	Description string
}

// Path returns the dotted action path.
func (m Metadata) Path() string {
	return m.Area + "." + m.Name + "." + m.Action
}

// Validate reports incomplete metadata.
func (m Metadata) Validate() error {
	for _, seg := range []string{m.Area, m.Name, m.Action} {
		if strings.TrimSpace(seg) == "" || strings.Contains(seg, ".") {
			return fmt.Errorf("path %q must have three non-empty segments", m.Path())
		}
	}
	if m.Roles.Kind == RoleSpecific && strings.TrimSpace(m.Roles.Name) == "" {
		return fmt.Errorf("specific role without name")
	}
	if m.Protocol.Kind == ProtocolSpecific && strings.TrimSpace(m.Protocol.Name) == "" {
		return fmt.Errorf("specific protocol without name")
	}
	seen := make(map[string]bool, len(m.Params))
	for _, p := range m.Params {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Type.Kind == KindRaw {
			continue
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
