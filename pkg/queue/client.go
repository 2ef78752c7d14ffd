package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const clientLogPrefix = "queue:client"

// DefaultCallTimeout applies when neither ctx nor the client sets a deadline.
const DefaultCallTimeout = 30 * time.Second

// ErrNoResponders is returned when no server listens on the subject.
var ErrNoResponders = errors.New("queue: no dispatcher listening")

// Client sends requests to a dispatcher over COMMS.
type Client struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
}

// NewClientParams holds parameters for NewClient.
type NewClientParams struct {
	Conn    *comms.Conn
	Subject string
	Timeout time.Duration
}

// NewClient creates a Client.
func NewClient(params NewClientParams) *Client {
	subject := params.Subject
	if subject == "" {
		subject = commsutil.SubjectDispatch
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{nc: params.Conn, subject: subject, timeout: timeout}
}

// Call sends req and waits for the remote result. Transport failures are
// errors; dispatch failures are results.
func (c *Client) Call(ctx context.Context, req *request.Request) (*result.Result, error) {
	data, err := commsutil.EncodePayload(request.ToEnvelope(req))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode envelope: %w", clientLogPrefix, err)
	}
	return c.CallEnvelope(ctx, data)
}

// CallEnvelope sends an already encoded envelope.
func (c *Client) CallEnvelope(ctx context.Context, data []byte) (*result.Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		if errors.Is(err, comms.ErrNoResponders) {
			return nil, fmt.Errorf("%s - %s: %w", clientLogPrefix, c.subject, ErrNoResponders)
		}
		return nil, fmt.Errorf("%s - request to %s failed: %w", clientLogPrefix, c.subject, err)
	}
	return commsutil.DecodeResult(msg.Data)
}
