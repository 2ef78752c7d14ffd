// Package registry maps area.name.action paths onto action metadata and
// the handles that run them.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/morezero/action-dispatcher/pkg/action"
)

const logPrefix = "registry:registry"

// Entry is a registered action with its resolved metadata.
type Entry struct {
	Metadata action.Metadata
	Handle   action.Handle
}

// Path returns the declared dotted path.
func (e *Entry) Path() string {
	return e.Metadata.Path()
}

// RegistrationError reports a declaration the registry refused.
type RegistrationError struct {
	Path   string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registry: cannot register %s: %s", e.Path, e.Reason)
}

type key struct {
	area, name, action string
}

type groupKey struct {
	area, name string
}

// snapshot is never mutated once published.
type snapshot struct {
	entries map[key]*Entry
	groups  map[groupKey]action.Group
}

// Registry holds registered actions. Reads load an immutable snapshot and
// take no lock; registrations are serialized and publish a new snapshot.
type Registry struct {
	naming Naming
	mu     sync.Mutex
	sealed bool
	snap   atomic.Pointer[snapshot]
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	// Naming defaults to NamingLower.
	Naming Naming
}

// NewRegistry creates an empty registry.
func NewRegistry(params NewRegistryParams) *Registry {
	naming := params.Naming
	if naming == nil {
		naming = NamingLower
	}
	r := &Registry{naming: naming}
	r.snap.Store(&snapshot{
		entries: map[key]*Entry{},
		groups:  map[groupKey]action.Group{},
	})
	return r
}

func (r *Registry) keyOf(area, name, act string) key {
	return key{
		area:   strings.ToLower(strings.TrimSpace(area)),
		name:   r.naming(name),
		action: r.naming(act),
	}
}

func (r *Registry) groupKeyOf(area, name string) groupKey {
	return groupKey{area: strings.ToLower(strings.TrimSpace(area)), name: r.naming(name)}
}

// RegisterGroup declares the defaults inherited by actions under
// (area, name). Actions registered before the group keep what they resolved.
func (r *Registry) RegisterGroup(g action.Group) error {
	path := g.Area + "." + g.Name
	if strings.TrimSpace(g.Area) == "" || strings.TrimSpace(g.Name) == "" {
		return &RegistrationError{Path: path, Reason: "group needs area and name"}
	}
	if g.Roles.Kind == action.RoleParent || g.Protocol.Kind == action.ProtocolParent {
		return &RegistrationError{Path: path, Reason: "group cannot inherit from a parent"}
	}
	if g.AuthMode == action.AuthInherit {
		g.AuthMode = action.NoAuth
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return &RegistrationError{Path: path, Reason: "registry is sealed"}
	}
	cur := r.snap.Load()
	next := &snapshot{entries: cur.entries, groups: make(map[groupKey]action.Group, len(cur.groups)+1)}
	for k, v := range cur.groups {
		next.groups[k] = v
	}
	next.groups[r.groupKeyOf(g.Area, g.Name)] = g
	r.snap.Store(next)
	return nil
}

// Register inserts or overwrites the action at meta's path. Parent roles,
// protocol and auth mode are copied from the group now and never
// re-resolved.
func (r *Registry) Register(meta action.Metadata, handle action.Handle) error {
	path := meta.Path()
	if err := meta.Validate(); err != nil {
		return &RegistrationError{Path: path, Reason: err.Error()}
	}
	if handle.Fn == nil {
		return &RegistrationError{Path: path, Reason: "handle has no function"}
	}
	if handle.Arity != len(meta.Params) {
		return &RegistrationError{
			Path:   path,
			Reason: fmt.Sprintf("handle takes %d arguments, %d parameters declared", handle.Arity, len(meta.Params)),
		}
	}
	meta.Params = append([]action.ParamSpec(nil), meta.Params...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return &RegistrationError{Path: path, Reason: "registry is sealed"}
	}
	cur := r.snap.Load()
	group, hasGroup := cur.groups[r.groupKeyOf(meta.Area, meta.Name)]
	if err := resolveParent(&meta, group, hasGroup); err != nil {
		return err
	}

	k := r.keyOf(meta.Area, meta.Name, meta.Action)
	next := &snapshot{entries: make(map[key]*Entry, len(cur.entries)+1), groups: cur.groups}
	for ek, ev := range cur.entries {
		next.entries[ek] = ev
	}
	if prev, exists := next.entries[k]; exists {
		slog.Info(fmt.Sprintf("%s - overwriting %s with %s", logPrefix, prev.Path(), path))
	}
	next.entries[k] = &Entry{Metadata: meta, Handle: handle}
	r.snap.Store(next)
	slog.Debug(fmt.Sprintf("%s - registered %s roles=%s protocol=%s auth=%s", logPrefix, path, meta.Roles, meta.Protocol, meta.AuthMode))
	return nil
}

func resolveParent(meta *action.Metadata, group action.Group, hasGroup bool) error {
	needsGroup := meta.Roles.Kind == action.RoleParent || meta.Protocol.Kind == action.ProtocolParent
	if needsGroup && !hasGroup {
		return &RegistrationError{Path: meta.Path(), Reason: fmt.Sprintf("inherits from group %s.%s which is not registered", meta.Area, meta.Name)}
	}
	if meta.Roles.Kind == action.RoleParent {
		meta.Roles = group.Roles
	}
	if meta.Protocol.Kind == action.ProtocolParent {
		meta.Protocol = group.Protocol
	}
	if meta.AuthMode == action.AuthInherit {
		meta.AuthMode = action.NoAuth
		if hasGroup {
			meta.AuthMode = group.AuthMode
		}
	}
	if meta.Verb == "" && hasGroup {
		meta.Verb = group.Verb
	}
	return nil
}

// MustRegister panics when Register fails. Meant for static declarations.
func (r *Registry) MustRegister(meta action.Metadata, handle action.Handle) {
	if err := r.Register(meta, handle); err != nil {
		panic(err)
	}
}

// Seal rejects further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Resolve looks up an action after normalizing the tokens.
func (r *Registry) Resolve(area, name, act string) (*Entry, bool) {
	e, ok := r.snap.Load().entries[r.keyOf(area, name, act)]
	return e, ok
}

// ResolvePath looks up a dotted path.
func (r *Registry) ResolvePath(path string) (*Entry, bool) {
	parts := strings.Split(path, ".")
	if len(parts) != 3 {
		return nil, false
	}
	return r.Resolve(parts[0], parts[1], parts[2])
}

// Contains reports whether path resolves.
func (r *Registry) Contains(path string) bool {
	_, ok := r.ResolvePath(path)
	return ok
}

// Group returns the defaults registered for (area, name).
func (r *Registry) Group(area, name string) (action.Group, bool) {
	g, ok := r.snap.Load().groups[r.groupKeyOf(area, name)]
	return g, ok
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.snap.Load().entries)
}

// Entries returns all entries sorted by path.
func (r *Registry) Entries() []*Entry {
	snap := r.snap.Load()
	out := make([]*Entry, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}
