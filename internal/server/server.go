// Package server orchestrates all components: COMMS client, key store,
// registry, dispatcher, queue source and HTTP source.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/action-dispatcher/internal/actions"
	"github.com/morezero/action-dispatcher/internal/config"
	"github.com/morezero/action-dispatcher/pkg/auth"
	"github.com/morezero/action-dispatcher/pkg/bootstrap"
	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/convert"
	"github.com/morezero/action-dispatcher/pkg/db"
	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/events"
	"github.com/morezero/action-dispatcher/pkg/hooks"
	"github.com/morezero/action-dispatcher/pkg/queue"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/secret"
	"github.com/morezero/action-dispatcher/pkg/web"
)

const logPrefix = "server:server"

// Server is the action-dispatcher orchestrator.
type Server struct {
	cfg        *config.Config
	resolved   *bootstrap.Resolved
	nc         *comms.Conn
	pool       *pgxpool.Pool
	redis      *redis.Client
	reg        *registry.Registry
	dispatcher *dispatcher.Dispatcher
	forwarder  *queue.Forwarder
	queue      *queue.Server
	limiter    *hooks.RateLimit
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
}

// ParseLogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.COMMSName))

	ctx := context.Background()
	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return err
	}
	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, cfg.COMMSName))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout+5*time.Second)
	defer cancel()
	s.Shutdown(shutdownCtx)
	return nil
}

// New assembles every component from cfg without accepting traffic. On
// error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (s *Server, err error) {
	s = &Server{cfg: cfg}
	defer func() {
		if err != nil {
			s.Shutdown(ctx)
			s = nil
		}
	}()

	// Step 1: Declarations and registry
	decl, err := bootstrap.LoadDeclarations(cfg.DeclarationsFile)
	if err != nil {
		return s, fmt.Errorf("%s - failed to load declarations: %w", logPrefix, err)
	}
	if cfg.Naming != "" {
		decl.Naming = cfg.Naming
	}
	resolved, err := bootstrap.CreateResolved(decl)
	if err != nil {
		return s, fmt.Errorf("%s - invalid declarations: %w", logPrefix, err)
	}
	s.resolved = resolved
	s.reg = registry.NewRegistry(registry.NewRegistryParams{Naming: resolved.Naming()})
	if err := resolved.RegisterGroups(s.reg); err != nil {
		return s, fmt.Errorf("%s - failed to register groups: %w", logPrefix, err)
	}

	// Step 2: COMMS
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return s, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
	}

	// Step 3: Key store
	keys, admin, err := s.setupKeys(ctx)
	if err != nil {
		return s, err
	}

	// Step 4: Actions, local and forwarded
	if err := s.registerActions(admin); err != nil {
		return s, err
	}
	s.reg.Seal()
	slog.Info(fmt.Sprintf("%s - Registry sealed with %d actions", logPrefix, s.reg.Len()))

	// Step 5: Auth, conversion, hooks and dispatcher
	provider, err := s.authProvider(keys)
	if err != nil {
		return s, err
	}
	deserParams := convert.NewDeserializerParams{}
	if cfg.EncryptionKey != "" {
		box, err := secret.NewBox(cfg.EncryptionKey)
		if err != nil {
			return s, fmt.Errorf("%s - failed to create decryptor: %w", logPrefix, err)
		}
		deserParams.Decryptor = box
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := hooks.NewMetrics(promReg)
	if err != nil {
		return s, fmt.Errorf("%s - failed to register metrics: %w", logPrefix, err)
	}

	var before []dispatcher.BeforeHook
	if cfg.RateLimitRPS > 0 {
		s.limiter = hooks.NewRateLimit(hooks.NewRateLimitParams{PerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst})
		before = append(before, s.limiter)
	}
	after := []dispatcher.AfterHook{metrics, hooks.Logging{}}
	if s.nc != nil {
		after = append(after, events.NewHook(events.NewHookParams{
			Publisher:    events.NewCommsPublisher(s.nc, nil),
			OnlyResolved: true,
		}))
	}

	s.dispatcher = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry:     s.reg,
		Auth:         provider,
		Deserializer: convert.NewDeserializer(deserParams),
		Before:       before,
		After:        after,
	})

	// Step 6: Sources
	decoder, err := request.NewDecoder(cfg.EnvelopeVersion)
	if err != nil {
		return s, fmt.Errorf("%s - invalid envelope version range: %w", logPrefix, err)
	}
	if s.nc != nil {
		s.queue, err = queue.NewServer(queue.NewServerParams{
			Conn:       s.nc,
			Subject:    cfg.DispatchSubject,
			QueueGroup: cfg.DispatchQueueGroup,
			Dispatcher: s.dispatcher,
			Decoder:    decoder,
			Timeout:    cfg.RequestTimeout,
		})
		if err != nil {
			return s, err
		}
	}
	s.handler, err = web.NewRouter(web.NewRouterParams{
		Dispatcher:   s.dispatcher,
		Lister:       s.reg,
		Decoder:      decoder,
		Ready:        s.ready,
		ReadyTimeout: cfg.HealthCheckTimeout,
		Metrics:      promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		Title:        resolved.Name(),
		Version:      resolved.Version(),
	})
	if err != nil {
		return s, err
	}
	return s, nil
}

// setupKeys picks the key store: Postgres (optionally behind Redis) when
// DATABASE_URL is set, otherwise memory seeded from declarations.
func (s *Server) setupKeys(ctx context.Context) (auth.KeyStore, actions.KeyAdmin, error) {
	cfg := s.cfg
	if cfg.DatabaseURL == "" {
		store := auth.NewMemoryKeyStore(nil)
		slog.Info(fmt.Sprintf("%s - Using in-memory key store", logPrefix))
		return store, actions.NewMemoryKeys(store, s.resolved.APIKeys()), nil
	}

	pool, err := db.NewPool(ctx, db.NewPoolParams{URL: cfg.DatabaseURL, AppName: cfg.COMMSName})
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	repo := db.NewRepository(pool)

	if cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return nil, nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
		if _, err := db.SeedKeys(ctx, repo, s.resolved.APIKeys(), "seeded from "+s.resolved.Name()); err != nil {
			return nil, nil, fmt.Errorf("%s - failed to seed keys: %w", logPrefix, err)
		}
	} else if err := db.CheckKeyStore(ctx, pool); err != nil {
		return nil, nil, err
	}

	if cfg.RedisURL == "" {
		return repo, repo, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to connect to redis: %w", logPrefix, err)
	}
	s.redis = client
	cached := auth.NewCachedKeyStore(auth.NewCachedKeyStoreParams{Next: repo, Client: client, TTL: cfg.KeyCacheTTL})
	slog.Info(fmt.Sprintf("%s - Key lookups cached in redis for %s", logPrefix, cfg.KeyCacheTTL))
	return cached, actions.InvalidatingKeys{Next: repo, Cache: cached}, nil
}

func (s *Server) registerActions(admin actions.KeyAdmin) error {
	err := actions.Register(s.reg, actions.Params{
		Users: actions.NewDirectory(),
		Keys:  admin,
		Stats: func() dispatcher.Stats { return s.dispatcher.Stats() },
	})
	if err != nil {
		return err
	}

	remotes := s.resolved.Remotes()
	if len(remotes) == 0 {
		return nil
	}
	s.forwarder = queue.NewForwarder(queue.NewForwarderParams{Local: s.nc, Name: s.cfg.COMMSName})
	for _, r := range remotes {
		if r.URL == "" && s.nc == nil {
			return fmt.Errorf("%s - remote %s needs a url when NATS_URL is empty", logPrefix, r.Alias)
		}
		err := s.forwarder.Register(s.reg, queue.Remote{
			Alias:   r.Alias,
			URL:     r.URL,
			Subject: r.Subject,
			Area:    r.Area,
			Name:    r.Name,
			Actions: r.Actions,
			Timeout: r.Timeout,
		})
		if err != nil {
			return fmt.Errorf("%s - failed to register remote %s: %w", logPrefix, r.Alias, err)
		}
	}
	return nil
}

// authProvider verifies JWTs when JWT_SECRET is set, otherwise it looks
// tokens up in the declarations.
func (s *Server) authProvider(keys auth.KeyStore) (auth.Provider, error) {
	var tokens auth.TokenVerifier = auth.StaticTokens(s.resolved.Tokens())
	if s.cfg.JWTSecret != "" {
		v, err := auth.NewJWTVerifier(auth.NewJWTVerifierParams{Secret: []byte(s.cfg.JWTSecret), Leeway: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("%s - failed to create token verifier: %w", logPrefix, err)
		}
		tokens = v
	}
	return auth.NewRoleProvider(auth.NewRoleProviderParams{
		Tokens:    tokens,
		Keys:      keys,
		Hierarchy: auth.NewHierarchy(s.resolved.Hierarchy()),
	}), nil
}

// ready checks every configured backend.
func (s *Server) ready(ctx context.Context) error {
	var errs []error
	if s.nc != nil && s.nc.Status() != comms.CONNECTED {
		errs = append(errs, fmt.Errorf("nats: %s", s.nc.Status()))
	}
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start subscribes the queue source and starts the HTTP listener.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.limiter != nil {
		s.limiter.StartSweeper(runCtx, time.Minute, 10*time.Minute)
	}
	if s.queue != nil {
		if err := s.queue.Start(runCtx); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("%s - failed to listen on port %d: %w", logPrefix, s.cfg.HTTPPort, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

// Addr returns the HTTP listen address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Dispatcher returns the assembled dispatcher.
func (s *Server) Dispatcher() *dispatcher.Dispatcher { return s.dispatcher }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Registry returns the sealed action registry.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Info returns the declared service name and version.
func (s *Server) Info() (name, version string) {
	return s.resolved.Name(), s.resolved.Version()
}

// Shutdown stops accepting traffic, waits for in-flight work and closes
// connections. It is safe on a partially built server.
func (s *Server) Shutdown(ctx context.Context) {
	if s.queue != nil {
		if err := s.queue.Stop(); err != nil {
			slog.Warn(fmt.Sprintf("%s - queue stop: %v", logPrefix, err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.forwarder != nil {
		s.forwarder.CloseAll()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}
