// Package actions registers the dispatcher's built-in and sample actions:
// the app.users directory, app.keys administration, sys.api listing and
// sys.health probes.
package actions

import (
	"errors"
	"fmt"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/registry"
)

const logPrefix = "actions:actions"

// Params holds what the registered actions depend on. Users and Keys may be
// nil, which skips their groups.
type Params struct {
	Users *Directory
	Keys  KeyAdmin
	// Stats reads dispatcher counters; it is called per request so it can be
	// wired before the dispatcher exists.
	Stats func() dispatcher.Stats
}

// Register adds every action to reg. Groups app.users, app.keys, sys.api and
// sys.health must already be registered when their actions inherit from them.
func Register(reg *registry.Registry, params Params) error {
	var errs []error
	if params.Users != nil {
		errs = append(errs, registerUsers(reg, params.Users))
	}
	if params.Keys != nil {
		errs = append(errs, registerKeys(reg, params.Keys))
	}
	errs = append(errs, registerSystem(reg, reg, params.Stats))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s - register: %w", logPrefix, err)
	}
	return nil
}
