package hooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const loggingLogPrefix = "hooks:logging"

// Logging is an after hook writing one line per dispatch. Server errors log
// at warn, other failures at info, successes at debug.
type Logging struct{}

// After implements dispatcher.AfterHook.
func (Logging) After(_ context.Context, out dispatcher.Outcome) error {
	req := out.Request
	msg := fmt.Sprintf("%s - path=%s source=%s tag=%s code=%d state=%s duration=%s",
		loggingLogPrefix, req.Path(), req.Source(), req.Tag(), out.Result.Code, out.State, out.Duration)
	switch {
	case out.Result.Code >= result.CodeUnexpected:
		slog.Warn(fmt.Sprintf("%s failedAt=%s message=%q", msg, out.FailedAt, out.Result.Message))
	case !out.Result.Success:
		slog.Info(fmt.Sprintf("%s failedAt=%s", msg, out.FailedAt))
	default:
		slog.Debug(msg)
	}
	return nil
}
