package bootstrap

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/registry"
)

const resolvedLogPrefix = "bootstrap:resolved"

// Remote is a validated remote declaration.
type Remote struct {
	Alias   string
	URL     string
	Subject string
	Area    string
	Name    string
	Actions []string
	Timeout time.Duration
}

// Resolved provides fast lookup of validated declarations.
type Resolved struct {
	name      string
	version   string
	naming    registry.Naming
	groups    map[string]action.Group
	order     []string
	hierarchy map[string][]string
	apiKeys   map[string][]string
	tokens    map[string][]string
	remotes   []Remote
}

func groupKey(area, name string) string {
	return strings.ToLower(area) + "." + strings.ToLower(name)
}

// CreateResolved validates declarations and builds lookups.
func CreateResolved(d *Declarations) (*Resolved, error) {
	naming, err := registry.ParseNaming(d.Naming)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", resolvedLogPrefix, err)
	}
	r := &Resolved{
		name:      d.Name,
		version:   d.Version,
		naming:    naming,
		groups:    make(map[string]action.Group, len(d.Groups)),
		hierarchy: copyRoles(d.Roles),
		apiKeys:   copyRoles(d.APIKeys),
		tokens:    copyRoles(d.Tokens),
	}

	for i, g := range d.Groups {
		grp, err := parseGroup(g)
		if err != nil {
			return nil, fmt.Errorf("%s - group %d (%s.%s): %w", resolvedLogPrefix, i, g.Area, g.Name, err)
		}
		k := groupKey(grp.Area, grp.Name)
		if _, dup := r.groups[k]; dup {
			return nil, fmt.Errorf("%s - group %s.%s declared twice", resolvedLogPrefix, grp.Area, grp.Name)
		}
		r.groups[k] = grp
		r.order = append(r.order, k)
	}

	aliases := map[string]bool{}
	for _, rd := range d.Remotes {
		rem, err := parseRemote(rd)
		if err != nil {
			return nil, fmt.Errorf("%s - remote %q: %w", resolvedLogPrefix, rd.Alias, err)
		}
		if aliases[rem.Alias] {
			return nil, fmt.Errorf("%s - remote %q declared twice", resolvedLogPrefix, rem.Alias)
		}
		aliases[rem.Alias] = true
		r.remotes = append(r.remotes, rem)
	}
	return r, nil
}

func parseGroup(g GroupDeclaration) (action.Group, error) {
	area, name := strings.TrimSpace(g.Area), strings.TrimSpace(g.Name)
	if area == "" || name == "" {
		return action.Group{}, fmt.Errorf("area and name are required")
	}
	roles := action.ParseRoleSpec(g.Roles)
	if roles.Kind == action.RoleParent {
		return action.Group{}, fmt.Errorf("a group cannot inherit roles")
	}
	protocol := action.ParseProtocolSpec(g.Protocol)
	if protocol.Kind == action.ProtocolParent {
		return action.Group{}, fmt.Errorf("a group cannot inherit its protocol")
	}
	mode, err := action.ParseAuthMode(g.AuthMode)
	if err != nil {
		return action.Group{}, err
	}
	return action.Group{
		Area:        area,
		Name:        name,
		Roles:       roles,
		Protocol:    protocol,
		AuthMode:    mode,
		Verb:        strings.ToLower(strings.TrimSpace(g.Verb)),
		Description: g.Description,
	}, nil
}

func parseRemote(rd RemoteDeclaration) (Remote, error) {
	rem := Remote{
		Alias:   strings.TrimSpace(rd.Alias),
		URL:     strings.TrimSpace(rd.URL),
		Subject: strings.TrimSpace(rd.Subject),
		Area:    strings.TrimSpace(rd.Area),
		Name:    strings.TrimSpace(rd.Name),
	}
	if rem.Alias == "" || rem.Area == "" || rem.Name == "" {
		return Remote{}, fmt.Errorf("alias, area and name are required")
	}
	for _, a := range rd.Actions {
		if a = strings.TrimSpace(a); a != "" {
			rem.Actions = append(rem.Actions, a)
		}
	}
	if len(rem.Actions) == 0 {
		return Remote{}, fmt.Errorf("no actions declared")
	}
	if rd.Timeout != "" {
		d, err := time.ParseDuration(rd.Timeout)
		if err != nil {
			return Remote{}, fmt.Errorf("invalid timeout: %w", err)
		}
		rem.Timeout = d
	}
	return rem, nil
}

func copyRoles(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Name returns the declarations name.
func (r *Resolved) Name() string { return r.name }

// Version returns the declarations version.
func (r *Resolved) Version() string { return r.version }

// Naming returns the action-name transform.
func (r *Resolved) Naming() registry.Naming { return r.naming }

// Group returns the declared group for area.name.
func (r *Resolved) Group(area, name string) (action.Group, bool) {
	g, ok := r.groups[groupKey(area, name)]
	return g, ok
}

// Groups returns groups in declaration order.
func (r *Resolved) Groups() []action.Group {
	out := make([]action.Group, len(r.order))
	for i, k := range r.order {
		out[i] = r.groups[k]
	}
	return out
}

// Hierarchy returns role -> included roles.
func (r *Resolved) Hierarchy() map[string][]string { return copyRoles(r.hierarchy) }

// APIKeys returns key -> roles.
func (r *Resolved) APIKeys() map[string][]string { return copyRoles(r.apiKeys) }

// Tokens returns token -> roles.
func (r *Resolved) Tokens() map[string][]string { return copyRoles(r.tokens) }

// Remotes returns remote declarations sorted by alias.
func (r *Resolved) Remotes() []Remote {
	out := append([]Remote(nil), r.remotes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// RegisterGroups registers every declared group with reg.
func (r *Resolved) RegisterGroups(reg *registry.Registry) error {
	for _, g := range r.Groups() {
		if err := reg.RegisterGroup(g); err != nil {
			return err
		}
	}
	return nil
}
