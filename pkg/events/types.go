// Package events publishes dispatch completion events.
package events

import (
	"time"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
)

// DispatchEvent is emitted once per finished dispatch.
type DispatchEvent struct {
	Path       string `json:"path"`
	Area       string `json:"area"`
	Name       string `json:"name"`
	Action     string `json:"action"`
	Resolved   bool   `json:"resolved"`
	Source     string `json:"source"`
	Tag        string `json:"tag"`
	Success    bool   `json:"success"`
	Code       int    `json:"code"`
	Message    string `json:"message,omitempty"`
	FailedAt   string `json:"failedAt,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}

// NewDispatchEvent builds the event for an outcome. The handler's value is
// never included.
func NewDispatchEvent(out dispatcher.Outcome, now time.Time) *DispatchEvent {
	req := out.Request
	ev := &DispatchEvent{
		Path:       req.Path(),
		Area:       req.Area(),
		Name:       req.Name(),
		Action:     req.Action(),
		Resolved:   out.Resolved,
		Source:     req.Source().String(),
		Tag:        req.Tag(),
		Success:    out.Result.Success,
		Code:       out.Result.Code,
		DurationMs: out.Duration.Milliseconds(),
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
	}
	if out.Resolved {
		ev.Path = out.Metadata.Path()
		ev.Area, ev.Name, ev.Action = out.Metadata.Area, out.Metadata.Name, out.Metadata.Action
	}
	if !out.Result.Success {
		ev.Message = out.Result.Message
		ev.FailedAt = out.FailedAt.String()
	}
	return ev
}
