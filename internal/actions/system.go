package actions

import (
	"context"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/registry"
)

// Lister is the listing side of the registry.
type Lister interface {
	List() []registry.ActionInfo
	ListVisible(protocol string) []registry.ActionInfo
}

func registerSystem(reg *registry.Registry, lister Lister, stats func() dispatcher.Stats) error {
	started := time.Now()
	if err := reg.Register(action.Metadata{
		Area: "sys", Name: "api", Action: "list", Roles: action.ParentRoles, Protocol: action.ParentProtocol,
		Description: "List registered actions, optionally those reachable over one protocol",
		Params:      []action.ParamSpec{action.Optional("protocol", action.String)},
	}, action.Func1(func(_ context.Context, protocol string) (action.Reply, error) {
		if protocol == "" {
			return action.Ok(lister.List()), nil
		}
		visible := lister.ListVisible(protocol)
		if visible == nil {
			visible = []registry.ActionInfo{}
		}
		return action.Ok(visible), nil
	})); err != nil {
		return err
	}

	if err := reg.Register(action.Metadata{
		Area: "sys", Name: "health", Action: "ping", Roles: action.ParentRoles, Protocol: action.ParentProtocol,
		Description: "Liveness probe",
	}, action.Func0(func(context.Context) (action.Reply, error) {
		return action.Ok("pong"), nil
	})); err != nil {
		return err
	}

	return reg.Register(action.Metadata{
		Area: "sys", Name: "health", Action: "stats", Roles: action.ParentRoles, Protocol: action.ParentProtocol,
		Description: "Dispatcher counters and uptime",
	}, action.Func0(func(context.Context) (action.Reply, error) {
		out := map[string]any{"uptimeSeconds": int64(time.Since(started).Seconds())}
		if stats != nil {
			out["stats"] = stats()
		}
		return action.Ok(out), nil
	}))
}
