package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/auth"
	"github.com/morezero/action-dispatcher/pkg/convert"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const logPrefix = "dispatcher:dispatch"

// Resolver finds the entry registered for a request's path.
type Resolver interface {
	Resolve(area, name, act string) (*registry.Entry, bool)
}

// Dispatcher runs requests through resolution, filtering, conversion and
// invocation. It holds no per-call state; every field is read-only after
// NewDispatcher.
type Dispatcher struct {
	resolver     Resolver
	filter       *auth.Filter
	deserializer *convert.Deserializer
	before       []BeforeHook
	after        []AfterHook
	counters     counters
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry Resolver
	// Auth may be nil; actions that need authorization are then refused.
	Auth         auth.Provider
	Deserializer *convert.Deserializer
	Before       []BeforeHook
	After        []AfterHook
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	deser := params.Deserializer
	if deser == nil {
		deser = convert.NewDeserializer(convert.NewDeserializerParams{})
	}
	return &Dispatcher{
		resolver:     params.Registry,
		filter:       auth.NewFilter(params.Auth),
		deserializer: deser,
		before:       append([]BeforeHook(nil), params.Before...),
		after:        append([]AfterHook(nil), params.After...),
	}
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return d.counters.snapshot()
}

// Dispatch runs one request to completion and always returns a Result.
// ctx is handed to hooks and the handler; the dispatcher itself does not
// abort a handler when ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, req *request.Request) *result.Result {
	if req == nil {
		return result.BadRequest(result.MsgInvalidRequest).ToResult("")
	}
	start := time.Now()
	d.counters.inFlight.Add(1)
	defer d.counters.inFlight.Add(-1)

	out := Outcome{Request: req}
	res, state := d.run(ctx, req, &out)
	observed := *res
	out.Result = &observed
	out.Duration = time.Since(start)
	if res.Success {
		out.State = StateCompleted
	} else {
		out.State = StateFailed
		out.FailedAt = state
	}

	d.counters.record(res.Code, res.Success)
	d.runAfter(ctx, out)
	return res
}

// run walks the states once and reports the state it ended in. Before
// hooks run in StateAuthorized.
func (d *Dispatcher) run(ctx context.Context, req *request.Request, out *Outcome) (*result.Result, State) {
	tag := req.Tag()
	slog.Debug(fmt.Sprintf("%s - path=%s source=%s tag=%s", logPrefix, req.Path(), req.Source(), tag))

	if d.resolver == nil {
		return result.NotFound(result.MsgNotFound).ToResult(tag), StateResolving
	}
	entry, ok := d.resolver.Resolve(req.Area(), req.Name(), req.Action())
	if !ok {
		return result.NotFound(result.MsgNotFound).ToResult(tag), StateResolving
	}
	meta := entry.Metadata
	out.Metadata, out.Resolved = meta, true

	if err := auth.CheckProtocol(req, meta); err != nil {
		return result.FromError(tag, err), StateProtocolChecked
	}
	if err := d.filter.Authorize(ctx, req, meta); err != nil {
		return result.FromError(tag, err), StateAuthorized
	}

	for _, h := range d.before {
		if err := runBefore(ctx, h, req, meta); err != nil {
			return result.FromError(tag, err), StateAuthorized
		}
	}

	args, err := d.deserializer.Convert(req, meta.Params)
	if err != nil {
		bad := result.BadRequest(err.Error())
		var ce *convert.ConversionError
		if errors.As(err, &ce) {
			bad = bad.WithDetails(map[string]string{"param": ce.Param})
		}
		return bad.ToResult(tag), StateDeserialized
	}

	reply, err := invoke(ctx, entry.Handle, args, meta.Path())
	if err != nil {
		return result.FromError(tag, err), StateInvoking
	}
	if reply.Code >= result.CodeBadRequest {
		res := result.Failure(tag, reply.Code, reply.Message)
		res.Value = reply.Value
		return res, StateInvoking
	}
	return result.Ok(tag, reply.Value, reply.Message), StateInvoking
}

// runBefore maps hook errors and panics onto result errors.
func runBefore(ctx context.Context, h BeforeHook, req *request.Request, meta action.Metadata) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - before hook panicked on %s: %v", logPrefix, meta.Path(), r))
			err = result.Unexpected(fmt.Sprintf("%s: %v", result.MsgUnexpected, r))
		}
	}()
	if herr := h.Before(ctx, req, meta); herr != nil {
		var re *result.Error
		if errors.As(herr, &re) {
			return re
		}
		return result.Filtered(herr.Error())
	}
	return nil
}

// invoke is the single place handler failures are intercepted.
func invoke(ctx context.Context, h action.Handle, args action.Args, path string) (reply action.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - handler for %s panicked: %v", logPrefix, path, r))
			err = result.Unexpected(fmt.Sprintf("%s: %v", result.MsgUnexpected, r))
		}
	}()
	reply, err = h.Call(ctx, args)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - handler for %s failed: %v", logPrefix, path, err))
	}
	return reply, err
}

func (d *Dispatcher) runAfter(ctx context.Context, out Outcome) {
	for _, h := range d.after {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error(fmt.Sprintf("%s - after hook panicked: %v", logPrefix, r))
				}
			}()
			if err := h.After(ctx, out); err != nil {
				slog.Warn(fmt.Sprintf("%s - after hook failed: %v", logPrefix, err))
			}
		}()
	}
}
