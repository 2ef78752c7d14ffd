package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/result"
)

// User is an entry in the sample directory.
type User struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Tags    []string  `json:"tags"`
	Created time.Time `json:"created"`
	HasPIN  bool      `json:"hasPin"`
}

// Directory is an in-memory user store.
type Directory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
	pins  map[uuid.UUID]int
	now   func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[uuid.UUID]*User),
		pins:  make(map[uuid.UUID]int),
		now:   time.Now,
	}
}

// Create adds a user. Emails are unique, case-insensitively.
func (d *Directory) Create(name, email string, tags []string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return User{}, result.BadRequest("name and email are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return User{}, result.BadRequest(fmt.Sprintf("email %s already registered", email)).WithDetails(u.ID.String())
		}
	}
	u := &User{ID: uuid.New(), Name: name, Email: email, Tags: append([]string{}, tags...), Created: d.now().UTC()}
	d.users[u.ID] = u
	return *u, nil
}

// Get returns a user by id.
func (d *Directory) Get(id uuid.UUID) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, result.NotFound("user not found")
	}
	return *u, nil
}

// List returns users sorted by creation, optionally filtered by tag.
func (d *Directory) List(tag string) []User {
	d.mu.RLock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		if tag != "" && !contains(u.Tags, tag) {
			continue
		}
		out = append(out, *u)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].Email < out[j].Email
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Delete removes a user.
func (d *Directory) Delete(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[id]; !ok {
		return result.NotFound("user not found")
	}
	delete(d.users, id)
	delete(d.pins, id)
	return nil
}

// SetPIN stores a user's PIN.
func (d *Directory) SetPIN(id uuid.UUID, pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return result.NotFound("user not found")
	}
	d.pins[id] = pin
	u.HasPIN = true
	return nil
}

// CheckPIN reports whether pin matches the stored PIN.
func (d *Directory) CheckPIN(id uuid.UUID, pin int) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.users[id]; !ok {
		return false, result.NotFound("user not found")
	}
	stored, ok := d.pins[id]
	return ok && stored == pin, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func registerUsers(reg *registry.Registry, dir *Directory) error {
	idParam := action.Required("id", action.UUID)
	defs := []struct {
		meta   action.Metadata
		handle action.Handle
	}{
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "rolesAny", Roles: action.ParentRoles, Protocol: action.ParentProtocol,
				Description: "Echo code and tag for any authenticated caller",
				Params:      []action.ParamSpec{action.Required("code", action.Int), action.Required("tag", action.String)},
			},
			action.Func2(func(_ context.Context, code int, tag string) (action.Reply, error) {
				return action.OkMessage("rolesAny", fmt.Sprintf("%d %s", code, tag)), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "create", Roles: action.Role("dev"), Protocol: action.ParentProtocol, Verb: "POST",
				Description: "Create a user",
				Params: []action.ParamSpec{
					action.Required("name", action.String),
					action.Required("email", action.String),
					action.Optional("tags", action.ListOf(action.String)),
				},
			},
			action.Func3(func(_ context.Context, name, email string, tags []string) (action.Reply, error) {
				u, err := dir.Create(name, email, tags)
				if err != nil {
					return action.Reply{}, err
				}
				return action.OkMessage(u, "created"), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "get", Roles: action.ParentRoles, Protocol: action.ParentProtocol, Verb: "GET",
				Description: "Fetch a user by id",
				Params:      []action.ParamSpec{idParam},
			},
			action.Func1(func(_ context.Context, id uuid.UUID) (action.Reply, error) {
				u, err := dir.Get(id)
				if err != nil {
					return action.Reply{}, err
				}
				return action.Ok(u), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "list", Roles: action.ParentRoles, Protocol: action.ParentProtocol, Verb: "GET",
				Description: "List users, optionally by tag",
				Params:      []action.ParamSpec{action.Optional("tag", action.String)},
			},
			action.Func1(func(_ context.Context, tag string) (action.Reply, error) {
				users := dir.List(tag)
				return action.OkMessage(users, fmt.Sprintf("%d users", len(users))), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "delete", Roles: action.Role("admin"), Protocol: action.ParentProtocol, Verb: "DELETE",
				Description: "Delete a user",
				Params:      []action.ParamSpec{idParam},
			},
			action.Func1(func(_ context.Context, id uuid.UUID) (action.Reply, error) {
				if err := dir.Delete(id); err != nil {
					return action.Reply{}, err
				}
				return action.OkMessage(true, "deleted"), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "setPin", Roles: action.ParentRoles, Protocol: action.ParentProtocol,
				Description: "Store an encrypted PIN",
				Params:      []action.ParamSpec{idParam, action.Required("pin", action.Encrypted(action.Int))},
			},
			action.Func2(func(_ context.Context, id uuid.UUID, pin int) (action.Reply, error) {
				if err := dir.SetPIN(id, pin); err != nil {
					return action.Reply{}, err
				}
				return action.Ok(true), nil
			}),
		},
		{
			action.Metadata{
				Area: "app", Name: "users", Action: "checkPin", Roles: action.ParentRoles, Protocol: action.ParentProtocol,
				Description: "Compare an encrypted PIN with the stored one",
				Params:      []action.ParamSpec{idParam, action.Required("pin", action.Encrypted(action.Int))},
			},
			action.Func2(func(_ context.Context, id uuid.UUID, pin int) (action.Reply, error) {
				ok, err := dir.CheckPIN(id, pin)
				if err != nil {
					return action.Reply{}, err
				}
				return action.Ok(ok), nil
			}),
		},
	}
	for _, def := range defs {
		if err := reg.Register(def.meta, def.handle); err != nil {
			return err
		}
	}
	return nil
}
