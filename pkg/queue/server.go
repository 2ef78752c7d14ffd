// Package queue serves the dispatcher over COMMS request/reply and forwards
// declared remote actions to other dispatchers.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"

	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const serverLogPrefix = "queue:server"

// DefaultMaxInFlight bounds concurrently running dispatches per server.
const DefaultMaxInFlight = 64

// EnvelopeDispatcher is the part of the dispatcher the server needs.
type EnvelopeDispatcher interface {
	DispatchEnvelope(ctx context.Context, dec *request.Decoder, data []byte, source request.Source) *result.Result
}

// Server answers dispatch envelopes published to a subject.
type Server struct {
	nc         *comms.Conn
	subject    string
	queueGroup string
	dispatcher EnvelopeDispatcher
	decoder    *request.Decoder
	timeout    time.Duration
	source     request.Source
	slots      chan struct{}

	mu  sync.Mutex
	sub *comms.Subscription
	wg  sync.WaitGroup
}

// NewServerParams holds parameters for NewServer.
type NewServerParams struct {
	Conn       *comms.Conn
	Subject    string
	QueueGroup string
	Dispatcher EnvelopeDispatcher
	Decoder    *request.Decoder
	// Timeout bounds each dispatch; zero waits for the handler.
	Timeout time.Duration
	// MaxInFlight bounds dispatches running at once, including ones whose
	// caller already got a timeout reply.
	MaxInFlight int
	// TrustSource honors the envelope's declared source. Use it only for
	// subjects that other dispatchers forward to.
	TrustSource bool
}

// NewServer creates a Server. Subject and queue group default to
// commsutil.SubjectDispatch and commsutil.DefaultQueueGroup.
func NewServer(params NewServerParams) (*Server, error) {
	if params.Conn == nil {
		return nil, fmt.Errorf("%s - connection is required", serverLogPrefix)
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("%s - dispatcher is required", serverLogPrefix)
	}
	dec := params.Decoder
	if dec == nil {
		var err error
		if dec, err = request.NewDecoder(""); err != nil {
			return nil, fmt.Errorf("%s - failed to create decoder: %w", serverLogPrefix, err)
		}
	}
	subject := params.Subject
	if subject == "" {
		subject = commsutil.SubjectDispatch
	}
	group := params.QueueGroup
	if group == "" {
		group = commsutil.DefaultQueueGroup
	}
	maxInFlight := params.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	source := request.SourceQueue
	if params.TrustSource {
		source = request.SourceUnknown
	}
	return &Server{
		nc:         params.Conn,
		subject:    subject,
		queueGroup: group,
		dispatcher: params.Dispatcher,
		decoder:    dec,
		timeout:    params.Timeout,
		source:     source,
		slots:      make(chan struct{}, maxInFlight),
	}, nil
}

// Subject returns the subject the server listens on.
func (s *Server) Subject() string { return s.subject }

// Start subscribes to the subject. Handlers derive their contexts from ctx.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return fmt.Errorf("%s - already started on %s", serverLogPrefix, s.subject)
	}
	sub, err := s.nc.QueueSubscribe(s.subject, s.queueGroup, func(msg *comms.Msg) {
		s.slots <- struct{}{}
		s.wg.Add(1)
		go s.handle(ctx, msg, func() {
			<-s.slots
			s.wg.Done()
		})
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", serverLogPrefix, s.subject, err)
	}
	s.sub = sub
	slog.Info(fmt.Sprintf("%s - Subscribed to %s (queue %s)", serverLogPrefix, s.subject, s.queueGroup))
	return nil
}

// Stop unsubscribes and waits for in-flight dispatches to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	err := sub.Unsubscribe()
	s.wg.Wait()
	slog.Info(fmt.Sprintf("%s - Unsubscribed from %s", serverLogPrefix, s.subject))
	return err
}

// handle answers msg. release runs once the dispatch returns, which may be
// after a timeout reply, so a slot stays taken while its handler runs.
func (s *Server) handle(ctx context.Context, msg *comms.Msg, release func()) {
	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan *result.Result, 1)
	go func() {
		defer release()
		done <- s.dispatcher.DispatchEnvelope(reqCtx, s.decoder, msg.Data, s.source)
	}()

	var res *result.Result
	select {
	case res = <-done:
	case <-reqCtx.Done():
		tag := gjson.GetBytes(msg.Data, "tag").String()
		slog.Warn(fmt.Sprintf("%s - dispatch on %s did not finish: tag=%s err=%v", serverLogPrefix, s.subject, tag, reqCtx.Err()))
		res = result.Unexpected(result.MsgRequestTimedOut).ToResult(tag)
	}

	if msg.Reply == "" {
		slog.Debug(fmt.Sprintf("%s - no reply subject, dropping result code=%d tag=%s", serverLogPrefix, res.Code, res.Tag))
		return
	}
	if err := msg.Respond(commsutil.EncodeResult(res)); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", serverLogPrefix, err))
	}
}
