package events

import (
	"context"
	"time"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
)

// Hook is a dispatcher after hook that publishes one DispatchEvent per
// dispatch. Publish errors are returned to the dispatcher, which logs them.
type Hook struct {
	publisher    EventPublisher
	onlyResolved bool
	now          func() time.Time
}

// NewHookParams holds parameters for NewHook.
type NewHookParams struct {
	Publisher EventPublisher
	// OnlyResolved skips requests that matched no action.
	OnlyResolved bool
}

// NewHook creates a Hook. A nil publisher publishes nothing.
func NewHook(params NewHookParams) *Hook {
	pub := params.Publisher
	if pub == nil {
		pub = &NoOpPublisher{}
	}
	return &Hook{publisher: pub, onlyResolved: params.OnlyResolved, now: time.Now}
}

// After implements dispatcher.AfterHook.
func (h *Hook) After(ctx context.Context, out dispatcher.Outcome) error {
	if h.onlyResolved && !out.Resolved {
		return nil
	}
	return h.publisher.PublishDispatched(ctx, NewDispatchEvent(out, h.now()))
}
