package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-dispatcher/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the subject every event is also published to.
	GlobalSubject string
	// SkipGlobal publishes to the granular subject only.
	SkipGlobal bool
}

// CommsPublisher publishes dispatch events to COMMS subjects.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	global := commsutil.SubjectCompleted
	if opts != nil {
		if opts.GlobalSubject != "" {
			global = opts.GlobalSubject
		}
		if opts.SkipGlobal {
			global = ""
		}
	}
	return &CommsPublisher{nc: nc, globalSubject: global}
}

// PublishDispatched publishes to dispatch.completed.<area>.<name> and then
// to the global subject.
func (p *CommsPublisher) PublishDispatched(_ context.Context, event *DispatchEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	granular := commsutil.BuildCompletedSubject(event.Area, event.Name)
	if err := p.nc.Publish(granular, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granular, err))
		return err
	}

	if p.globalSubject != "" {
		if err := p.nc.Publish(p.globalSubject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.globalSubject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published dispatch event for %s tag=%s", commsPublisherLogPrefix, event.Path, event.Tag))
	return nil
}
