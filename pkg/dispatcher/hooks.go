package dispatcher

import (
	"context"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

// State is a step of a single dispatch.
type State int

const (
	StateResolving State = iota
	StateProtocolChecked
	StateAuthorized
	StateDeserialized
	StateInvoking
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateProtocolChecked:
		return "protocol_checked"
	case StateAuthorized:
		return "authorized"
	case StateDeserialized:
		return "deserialized"
	case StateInvoking:
		return "invoking"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is what after hooks observe. Metadata is zero unless Resolved.
// State is StateCompleted or StateFailed; FailedAt names the state whose
// step failed. Result is a copy of what the caller receives.
type Outcome struct {
	Request  *request.Request
	Metadata action.Metadata
	Resolved bool
	State    State
	FailedAt State
	Result   *result.Result
	Duration time.Duration
}

// BeforeHook runs after authorization and before conversion. Returning an
// error rejects the call: a *result.Error keeps its code, any other error
// is reported as Filtered.
type BeforeHook interface {
	Before(ctx context.Context, req *request.Request, meta action.Metadata) error
}

// AfterHook observes every finished dispatch. Its error is logged only.
type AfterHook interface {
	After(ctx context.Context, out Outcome) error
}

// BeforeFunc adapts a function to BeforeHook.
type BeforeFunc func(ctx context.Context, req *request.Request, meta action.Metadata) error

// Before implements BeforeHook.
func (f BeforeFunc) Before(ctx context.Context, req *request.Request, meta action.Metadata) error {
	return f(ctx, req, meta)
}

// AfterFunc adapts a function to AfterHook.
type AfterFunc func(ctx context.Context, out Outcome) error

// After implements AfterHook.
func (f AfterFunc) After(ctx context.Context, out Outcome) error {
	return f(ctx, out)
}
