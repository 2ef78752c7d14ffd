package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const forwarderLogPrefix = "queue:forwarder"

// Remote declares actions served by another dispatcher.
type Remote struct {
	Alias string
	// URL of the remote COMMS server; empty reuses the local connection.
	URL     string
	Subject string
	Area    string
	Name    string
	Actions []string
	Timeout time.Duration
}

// Forwarder keeps persistent connections to remote dispatchers and
// registers local actions that relay requests to them.
type Forwarder struct {
	mu          sync.RWMutex
	local       *comms.Conn
	name        string
	connections map[string]*remoteConnection
}

type remoteConnection struct {
	nc          *comms.Conn
	url         string
	connectedAt time.Time
}

// NewForwarderParams holds parameters for NewForwarder.
type NewForwarderParams struct {
	// Local is used for remotes without a URL.
	Local *comms.Conn
	// Name prefixes connection names, e.g. "action-dispatcher".
	Name string
}

// NewForwarder creates a Forwarder.
func NewForwarder(params NewForwarderParams) *Forwarder {
	name := params.Name
	if name == "" {
		name = "action-dispatcher"
	}
	return &Forwarder{
		local:       params.Local,
		name:        name,
		connections: make(map[string]*remoteConnection),
	}
}

// Register adds one forwarding action per remote action. Actions take the
// whole request and inherit roles and protocol from the local group when
// one is declared; the remote dispatcher authorizes again.
func (f *Forwarder) Register(reg *registry.Registry, remote Remote) error {
	if remote.Alias == "" || remote.Area == "" || remote.Name == "" {
		return fmt.Errorf("%s - remote needs alias, area and name", forwarderLogPrefix)
	}
	if len(remote.Actions) == 0 {
		return fmt.Errorf("%s - remote %s declares no actions", forwarderLogPrefix, remote.Alias)
	}
	if remote.URL == "" && f.local == nil {
		return fmt.Errorf("%s - remote %s has no URL and no local connection is set", forwarderLogPrefix, remote.Alias)
	}
	if remote.Subject == "" {
		remote.Subject = commsutil.SubjectDispatch
	}

	roles, protocol := action.NoRoles, action.AnyProtocol
	if _, ok := reg.Group(remote.Area, remote.Name); ok {
		roles, protocol = action.ParentRoles, action.ParentProtocol
	}

	for _, act := range remote.Actions {
		meta := action.Metadata{
			Area:        remote.Area,
			Name:        remote.Name,
			Action:      strings.TrimSpace(act),
			Roles:       roles,
			Protocol:    protocol,
			Params:      []action.ParamSpec{action.Required("request", action.Raw)},
			Description: fmt.Sprintf("forwarded to %s", remote.Alias),
		}
		rem := remote
		handle := action.Func1(func(ctx context.Context, req *request.Request) (action.Reply, error) {
			return f.forward(ctx, rem, req)
		})
		if err := reg.Register(meta, handle); err != nil {
			return err
		}
	}
	slog.Info(fmt.Sprintf("%s - Registered %d actions under %s.%s for remote %s", forwarderLogPrefix, len(remote.Actions), remote.Area, remote.Name, remote.Alias))
	return nil
}

// forward relays req and maps the remote result onto a reply. Remote
// failures keep their code and value.
func (f *Forwarder) forward(ctx context.Context, remote Remote, req *request.Request) (action.Reply, error) {
	nc, err := f.getOrConnect(remote)
	if err != nil {
		return action.Reply{}, result.Unexpected(fmt.Sprintf("remote %s unavailable: %v", remote.Alias, err))
	}
	client := NewClient(NewClientParams{Conn: nc, Subject: remote.Subject, Timeout: remote.Timeout})
	res, err := client.Call(ctx, req)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - forwarding %s to %s failed: %v", forwarderLogPrefix, req.Path(), remote.Alias, err))
		if errors.Is(err, context.DeadlineExceeded) {
			return action.Reply{}, result.Unexpected(result.MsgRequestTimedOut)
		}
		return action.Reply{}, result.Unexpected(fmt.Sprintf("remote %s did not respond", remote.Alias))
	}
	if !res.Success {
		return action.Reply{Code: res.Code, Message: res.Message, Value: res.Value}, nil
	}
	return action.Reply{Message: res.Message, Value: res.Value}, nil
}

// getOrConnect gets an existing connection or creates a new one.
func (f *Forwarder) getOrConnect(remote Remote) (*comms.Conn, error) {
	if remote.URL == "" {
		return f.local, nil
	}

	f.mu.RLock()
	if rc, ok := f.connections[remote.Alias]; ok && rc.nc.IsConnected() {
		f.mu.RUnlock()
		return rc.nc, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if rc, ok := f.connections[remote.Alias]; ok && rc.nc.IsConnected() {
		return rc.nc, nil
	}
	if rc, ok := f.connections[remote.Alias]; ok {
		rc.nc.Close()
		delete(f.connections, remote.Alias)
	}

	slog.Info(fmt.Sprintf("%s - Connecting to remote alias=%s url=%s", forwarderLogPrefix, remote.Alias, remote.URL))
	nc, err := comms.Connect(remote.URL,
		comms.Name(fmt.Sprintf("%s-forward-%s", f.name, remote.Alias)),
		comms.MaxReconnects(5),
		comms.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	f.connections[remote.Alias] = &remoteConnection{nc: nc, url: remote.URL, connectedAt: time.Now()}
	return nc, nil
}

// Aliases returns the aliases with an open connection.
func (f *Forwarder) Aliases() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.connections))
	for alias := range f.connections {
		out = append(out, alias)
	}
	return out
}

// CloseAll closes all remote connections. The local connection is left open.
func (f *Forwarder) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for alias, rc := range f.connections {
		slog.Info(fmt.Sprintf("%s - Closing remote connection alias=%s", forwarderLogPrefix, alias))
		rc.nc.Close()
	}
	f.connections = make(map[string]*remoteConnection)
}
