// Package dispatcher sequences registry lookup, the protocol and
// authorization filter, before hooks, argument conversion, invocation and
// after hooks, and normalizes every outcome into a result.Result.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

// DispatchEnvelope decodes a JSON envelope and dispatches it. Envelopes that
// do not decode become bad-request results carrying the envelope's tag when
// one can be read.
func (d *Dispatcher) DispatchEnvelope(ctx context.Context, dec *request.Decoder, data []byte, source request.Source) *result.Result {
	req, err := dec.Decode(data, source)
	if err != nil {
		tag := gjson.GetBytes(data, "tag").String()
		slog.Debug(fmt.Sprintf("%s - rejected envelope tag=%s: %v", logPrefix, tag, err))
		res := result.BadRequest(result.MsgInvalidRequest).WithDetails(err.Error()).ToResult(tag)
		d.counters.record(res.Code, false)
		return res
	}
	return d.Dispatch(ctx, req)
}

// DispatchArgs builds a request from command-line tokens and dispatches it.
func (d *Dispatcher) DispatchArgs(ctx context.Context, args []string, source request.Source) *result.Result {
	req, err := request.FromArgs(args, source)
	if err != nil {
		res := result.BadRequest(result.MsgInvalidRequest).WithDetails(err.Error()).ToResult("")
		d.counters.record(res.Code, false)
		return res
	}
	return d.Dispatch(ctx, req)
}
