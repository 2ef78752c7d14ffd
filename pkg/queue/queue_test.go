package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/auth"
	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
	"github.com/morezero/action-dispatcher/pkg/value"
)

// startTestServer starts an in-process NATS server on a random port.
func startTestServer(t *testing.T) (*commsserver.Server, *comms.Conn) {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("queue:queue_test - failed to create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("queue:queue_test - server failed to start")
	}
	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("queue:queue_test - failed to connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns, nc
}

func remoteRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{Naming: registry.NamingLowerHyphen})
	reg.MustRegister(action.Metadata{
		Area: "billing", Name: "invoices", Action: "total",
		Roles: action.AnyRole, AuthMode: action.AppRole,
		Params: []action.ParamSpec{action.Required("amounts", action.ListOf(action.Long))},
	}, action.Func1(func(_ context.Context, amounts []int64) (action.Reply, error) {
		var sum int64
		for _, a := range amounts {
			sum += a
		}
		return action.OkMessage(sum, "total"), nil
	}))
	reg.MustRegister(action.Metadata{Area: "billing", Name: "invoices", Action: "slow", Roles: action.NoRoles},
		action.Func0(func(ctx context.Context) (action.Reply, error) {
			time.Sleep(300 * time.Millisecond)
			return action.Ok("late"), nil
		}))
	reg.MustRegister(action.Metadata{Area: "billing", Name: "invoices", Action: "cliOnly", Roles: action.NoRoles, Protocol: action.Protocol("cli")},
		action.Func0(func(context.Context) (action.Reply, error) { return action.Ok("cli"), nil }))
	return reg
}

func remoteDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	return dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry: remoteRegistry(t),
		Auth: auth.NewRoleProvider(auth.NewRoleProviderParams{
			Tokens: auth.StaticTokens{"acct": {"accountant"}},
			Keys:   auth.NewMemoryKeyStore(nil),
		}),
	})
}

func startServer(t *testing.T, nc *comms.Conn, params NewServerParams) *Server {
	t.Helper()
	params.Conn = nc
	if params.Dispatcher == nil {
		params.Dispatcher = remoteDispatcher(t)
	}
	srv, err := NewServer(params)
	if err != nil {
		t.Fatalf("queue:queue_test - NewServer failed: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("queue:queue_test - Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	if err := nc.Flush(); err != nil {
		t.Fatalf("queue:queue_test - flush failed: %v", err)
	}
	return srv
}

func newRequest(t *testing.T, path, token, data string) *request.Request {
	t.Helper()
	d := value.Mapping()
	if data != "" {
		var err error
		if d, err = value.Parse([]byte(data)); err != nil {
			t.Fatalf("queue:queue_test - bad data: %v", err)
		}
	}
	meta := value.Mapping()
	if token != "" {
		meta = meta.With(request.MetaToken, value.String(token))
	}
	req, err := request.New(request.Params{Path: path, Source: request.SourceCLI, Data: d, Meta: meta, Tag: "q-1"})
	if err != nil {
		t.Fatalf("queue:queue_test - request.New failed: %v", err)
	}
	return req
}

func TestServer_ClientCall(t *testing.T) {
	_, nc := startTestServer(t)
	startServer(t, nc, NewServerParams{Subject: "test.dispatch"})
	client := NewClient(NewClientParams{Conn: nc, Subject: "test.dispatch", Timeout: 5 * time.Second})

	res, err := client.Call(context.Background(), newRequest(t, "billing.invoices.total", "acct", `{"amounts":"1,2,3"}`))
	if err != nil {
		t.Fatalf("queue:queue_test - Call failed: %v", err)
	}
	if !res.Success || res.Message != "total" || res.Tag != "q-1" || res.Value == nil {
		t.Fatalf("queue:queue_test - got %+v", res)
	}
	if n, ok := res.Value.(interface{ String() string }); !ok || n.String() != "6" {
		t.Errorf("queue:queue_test - Value = %v, want 6", res.Value)
	}

	res, err = client.Call(context.Background(), newRequest(t, "billing.invoices.total", "", `{"amounts":[1]}`))
	if err != nil || res.Code != 401 {
		t.Errorf("queue:queue_test - anonymous call: res=%+v err=%v, want 401", res, err)
	}
}

func TestServer_SourceIsQueue(t *testing.T) {
	_, nc := startTestServer(t)
	startServer(t, nc, NewServerParams{Subject: "test.dispatch"})
	client := NewClient(NewClientParams{Conn: nc, Subject: "test.dispatch"})

	res, err := client.Call(context.Background(), newRequest(t, "billing.invoices.cli-only", "", ""))
	if err != nil {
		t.Fatalf("queue:queue_test - Call failed: %v", err)
	}
	if res.Code != 404 {
		t.Errorf("queue:queue_test - cli-only over queue: got %+v, want 404", res)
	}
}

func TestServer_TrustSource(t *testing.T) {
	_, nc := startTestServer(t)
	startServer(t, nc, NewServerParams{Subject: "trusted.dispatch", TrustSource: true})
	client := NewClient(NewClientParams{Conn: nc, Subject: "trusted.dispatch"})

	res, err := client.Call(context.Background(), newRequest(t, "billing.invoices.cli-only", "", ""))
	if err != nil {
		t.Fatalf("queue:queue_test - Call failed: %v", err)
	}
	if !res.Success || res.Value != "cli" {
		t.Errorf("queue:queue_test - trusted cli source: got %+v", res)
	}
}

func TestServer_InvalidEnvelope(t *testing.T) {
	_, nc := startTestServer(t)
	startServer(t, nc, NewServerParams{Subject: "test.dispatch"})
	client := NewClient(NewClientParams{Conn: nc, Subject: "test.dispatch"})

	res, err := client.CallEnvelope(context.Background(), []byte(`{"path":"billing","tag":"bad-1"}`))
	if err != nil {
		t.Fatalf("queue:queue_test - CallEnvelope failed: %v", err)
	}
	if res.Code != 400 || res.Tag != "bad-1" {
		t.Errorf("queue:queue_test - got %+v, want 400 with tag", res)
	}
}

func TestServer_Timeout(t *testing.T) {
	_, nc := startTestServer(t)
	startServer(t, nc, NewServerParams{Subject: "test.dispatch", Timeout: 50 * time.Millisecond})
	client := NewClient(NewClientParams{Conn: nc, Subject: "test.dispatch"})

	res, err := client.Call(context.Background(), newRequest(t, "billing.invoices.slow", "", ""))
	if err != nil {
		t.Fatalf("queue:queue_test - Call failed: %v", err)
	}
	if res.Code != 500 || res.Message != "request timed out" || res.Tag != "q-1" {
		t.Errorf("queue:queue_test - got %+v, want 500 request timed out", res)
	}
}

// stuckDispatcher ignores cancellation and records peak concurrency.
type stuckDispatcher struct {
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (d *stuckDispatcher) DispatchEnvelope(_ context.Context, _ *request.Decoder, _ []byte, _ request.Source) *result.Result {
	d.calls.Add(1)
	n := d.running.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(150 * time.Millisecond)
	d.running.Add(-1)
	return result.Ok("", "late", "")
}

func TestServer_MaxInFlightHoldsAfterTimeout(t *testing.T) {
	_, nc := startTestServer(t)
	stuck := &stuckDispatcher{}
	srv := startServer(t, nc, NewServerParams{Subject: "test.stuck", Dispatcher: stuck, Timeout: 20 * time.Millisecond, MaxInFlight: 1})
	client := NewClient(NewClientParams{Conn: nc, Subject: "test.stuck", Timeout: 5 * time.Second})

	req := newRequest(t, "billing.invoices.slow", "", "")
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Call(context.Background(), req)
			if err != nil {
				t.Errorf("queue:queue_test - Call failed: %v", err)
				return
			}
			if res.Message != "request timed out" {
				t.Errorf("queue:queue_test - got %+v, want timeout reply", res)
			}
		}()
	}
	wg.Wait()
	if err := srv.Stop(); err != nil {
		t.Fatalf("queue:queue_test - Stop failed: %v", err)
	}

	if got := stuck.calls.Load(); got != 3 {
		t.Errorf("queue:queue_test - %d dispatches, want 3", got)
	}
	if got := stuck.peak.Load(); got != 1 {
		t.Errorf("queue:queue_test - peak concurrency %d, want 1", got)
	}
}

func TestClient_NoResponders(t *testing.T) {
	_, nc := startTestServer(t)
	client := NewClient(NewClientParams{Conn: nc, Subject: "nobody.home", Timeout: time.Second})
	_, err := client.Call(context.Background(), newRequest(t, "a.b.c", "", ""))
	if !errors.Is(err, ErrNoResponders) {
		t.Errorf("queue:queue_test - err = %v, want ErrNoResponders", err)
	}
}

func TestServer_StartTwice(t *testing.T) {
	_, nc := startTestServer(t)
	srv := startServer(t, nc, NewServerParams{})
	if srv.Subject() != "api.dispatch" {
		t.Errorf("queue:queue_test - default subject = %q", srv.Subject())
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("queue:queue_test - second Start should fail")
	}
	if _, err := NewServer(NewServerParams{}); err == nil {
		t.Error("queue:queue_test - NewServer without connection should fail")
	}
}

func TestForwarder(t *testing.T) {
	ns, nc := startTestServer(t)
	startServer(t, nc, NewServerParams{Subject: "billing.dispatch"})

	local := registry.NewRegistry(registry.NewRegistryParams{Naming: registry.NamingLowerHyphen})
	if err := local.RegisterGroup(action.Group{Area: "billing", Name: "invoices", Roles: action.AnyRole, AuthMode: action.AppRole}); err != nil {
		t.Fatalf("queue:queue_test - RegisterGroup failed: %v", err)
	}
	fwd := NewForwarder(NewForwarderParams{Local: nc})
	defer fwd.CloseAll()
	err := fwd.Register(local, Remote{
		Alias: "billing", URL: ns.ClientURL(), Subject: "billing.dispatch",
		Area: "billing", Name: "invoices", Actions: []string{"total", "missing"},
	})
	if err != nil {
		t.Fatalf("queue:queue_test - Register failed: %v", err)
	}
	entry, ok := local.Resolve("billing", "invoices", "total")
	if !ok || entry.Metadata.Roles != action.AnyRole {
		t.Fatalf("queue:queue_test - forwarded action not registered with group roles: %+v", entry)
	}

	d := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry: local,
		Auth: auth.NewRoleProvider(auth.NewRoleProviderParams{
			Tokens: auth.StaticTokens{"acct": {"accountant"}},
			Keys:   auth.NewMemoryKeyStore(nil),
		}),
	})

	res := d.Dispatch(context.Background(), newRequest(t, "billing.invoices.total", "acct", `{"amounts":[40,2]}`))
	if !res.Success || res.Message != "total" || res.Tag != "q-1" {
		t.Fatalf("queue:queue_test - forwarded call: got %+v", res)
	}
	if got := fwd.Aliases(); len(got) != 1 || got[0] != "billing" {
		t.Errorf("queue:queue_test - Aliases = %v", got)
	}

	res = d.Dispatch(context.Background(), newRequest(t, "billing.invoices.total", "", `{"amounts":[1]}`))
	if res.Code != 401 {
		t.Errorf("queue:queue_test - local auth should reject first: got %+v", res)
	}

	res = d.Dispatch(context.Background(), newRequest(t, "billing.invoices.missing", "acct", ""))
	if res.Success || res.Code != 404 {
		t.Errorf("queue:queue_test - remote 404 should pass through: got %+v", res)
	}
}

func TestForwarder_RegisterErrors(t *testing.T) {
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	fwd := NewForwarder(NewForwarderParams{})
	tests := []struct {
		name   string
		remote Remote
	}{
		{"no alias", Remote{Area: "a", Name: "b", Actions: []string{"c"}, URL: "nats://x"}},
		{"no actions", Remote{Alias: "r", Area: "a", Name: "b", URL: "nats://x"}},
		{"no url and no local", Remote{Alias: "r", Area: "a", Name: "b", Actions: []string{"c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := fwd.Register(reg, tt.remote); err == nil {
				t.Error("queue:queue_test - expected error")
			}
		})
	}
}
