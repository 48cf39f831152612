package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/filter"
	"github.com/vyrodovalexey/edgegw/internal/health"
	"github.com/vyrodovalexey/edgegw/internal/middleware"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit/store"
	"github.com/vyrodovalexey/edgegw/internal/registry"
	"github.com/vyrodovalexey/edgegw/internal/router"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway wires the request pipeline to its long-lived dependencies and
// owns the public and admin listeners.
type Gateway struct {
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	clock   func() time.Time
	version string

	view      *registry.View
	source    registry.Source
	router    *router.Router
	limiter   *ratelimit.Limiter
	store     store.Store
	transport http.RoundTripper
	checker   *health.Checker

	runtime atomic.Pointer[Runtime]
	handler http.Handler

	listener *Listener
	admin    *Listener

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithTracer enables server spans and trace propagation upstream.
func WithTracer(tracer *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// WithClock sets the time source shared by every component.
func WithClock(clock func() time.Time) Option {
	return func(g *Gateway) {
		g.clock = clock
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(g *Gateway) {
		g.version = version
	}
}

// WithStore overrides the rate limit store built from configuration.
// The gateway takes ownership and closes it on Stop.
func WithStore(s store.Store) Option {
	return func(g *Gateway) {
		g.store = s
	}
}

// WithSource overrides the registry source built from configuration.
func WithSource(source registry.Source) Option {
	return func(g *Gateway) {
		g.source = source
	}
}

// WithTransport sets the upstream transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(g *Gateway) {
		g.transport = transport
	}
}

// New creates a gateway for a validated configuration. Nothing is started
// until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	g := &Gateway{
		logger: observability.NopLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.transport == nil {
		g.transport = proxy.NewTransport()
	}

	regLogger := g.logger.Named("registry")
	reg := cfg.Registry
	g.view = registry.NewView(
		registry.WithHeartbeatTTL(reg.HeartbeatTTL.Duration()),
		registry.WithEvictionGrace(reg.EvictionGrace.Duration()),
		registry.WithStalenessThreshold(reg.StalenessThreshold.Duration()),
		registry.WithClock(g.clock),
		registry.WithLogger(regLogger),
		registry.WithMetrics(g.metrics),
	)
	if g.source == nil {
		source, err := registry.NewSource(reg, cfg.Routes, regLogger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		g.source = source
	}
	g.router = router.New(g.view, router.WithClock(g.clock))

	if g.store == nil {
		s, err := g.newStore(ctx, cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		g.store = s
	}
	g.limiter = ratelimit.NewLimiter(g.store, ratelimit.WithClock(g.clock))

	rt, err := g.buildRuntime(cfg)
	if err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	g.runtime.Store(rt)

	g.checker = health.NewChecker(g.version, health.WithClock(g.clock))
	g.checker.RegisterCheck("registry", health.RegistryCheck(g.view, g.clock))
	if breaker, ok := g.store.(health.BreakerState); ok {
		g.checker.RegisterCheck("ratelimit-store", health.StoreCheck(breaker))
	}

	g.handler = g.buildHandler()
	g.state.Store(int32(StateStopped))

	return g, nil
}

// newStore builds the bucket store named by configuration. A Redis store
// is wrapped so that an outage degrades to local buckets.
func (g *Gateway) newStore(ctx context.Context, cfg config.RateLimitConfig) (store.Store, error) {
	logger := g.logger.Named("ratelimit")
	local := store.NewMemoryStore(
		store.WithMemoryLogger(logger),
		store.WithMemoryClock(g.clock),
	)
	if cfg.Store != config.StoreRedis {
		return local, nil
	}

	shared, err := store.NewRedisStoreWithConfig(ctx, store.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	}, store.WithRedisLogger(logger))
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	return store.NewResilientStore(shared, local,
		store.WithResilientLogger(logger),
		store.WithFallbackCallback(g.metrics.RecordRateLimitFallback),
	), nil
}

// buildHandler assembles the public engine. Every request falls through
// to the filter pipeline; the runtime is loaded once per request.
func (g *Gateway) buildHandler() http.Handler {
	var pipeline http.Handler = http.HandlerFunc(g.serve)
	pipeline = middleware.RequestID()(pipeline)
	if g.tracer != nil {
		pipeline = observability.TracingMiddleware(g.tracer)(pipeline)
	}
	pipeline = middleware.Recovery(g.logger)(pipeline)

	engine := g.newEngine()
	engine.NoRoute(func(c *gin.Context) {
		pipeline.ServeHTTP(c.Writer, c.Request)
		// gin defers the status line until the first body write.
		c.Writer.WriteHeaderNow()
	})
	return engine
}

// newEngine returns a bare gin engine that logs recovered panics through
// the gateway logger.
func (g *Gateway) newEngine() *gin.Engine {
	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })

	engine := gin.New()
	engine.Use(gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		g.logger.Error("panic recovered",
			observability.String("path", c.Request.URL.Path),
			observability.Any("error", rec),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	return engine
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	rt := g.runtime.Load()

	c := filter.NewContext(w, r, g.clock())
	c.Path = util.CleanPath(r.URL.Path)
	c.RequestID = observability.RequestIDFromContext(r.Context())
	c.ClientIP = rt.clientIP.Extract(r)

	_ = rt.chain.Execute(c, rt.forward)
}

// Handler returns the public request handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// AdminHandler returns the engine serving /metrics, /health and /ready.
func (g *Gateway) AdminHandler() http.Handler {
	engine := g.newEngine()
	if g.metrics != nil {
		engine.GET("/metrics", gin.WrapH(g.metrics.Handler()))
	}
	engine.GET("/health", gin.WrapF(g.checker.HealthHandler()))
	engine.GET("/ready", gin.WrapF(g.checker.ReadinessHandler()))
	return engine
}

// Start begins registry synchronization and starts both listeners.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	cfg := g.runtime.Load().cfg
	g.logger.Info("starting gateway",
		observability.String("address", cfg.Server.Address),
		observability.String("admin_address", cfg.Admin.Address),
		observability.String("registry_source", g.source.Name()),
		observability.Int("routes", len(cfg.Routes)),
	)

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		if err := g.source.Run(bgCtx, g.view); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Error("registry source stopped",
				observability.String("source", g.source.Name()),
				observability.Error(err),
			)
		}
	}()
	go func() {
		defer g.wg.Done()
		g.view.RunSweeper(bgCtx, cfg.Registry.SweepInterval.Duration())
	}()

	g.listener = NewListener("public", cfg.Server.Address, g.handler,
		WithListenerLogger(g.logger.Named("listener")),
		WithTimeouts(cfg.Server.ReadTimeout.Duration(), cfg.Server.WriteTimeout.Duration()),
	)
	g.admin = NewListener("admin", cfg.Admin.Address, g.AdminHandler(),
		WithListenerLogger(g.logger.Named("listener")),
	)

	for _, l := range []*Listener{g.listener, g.admin} {
		if err := l.Start(ctx); err != nil {
			g.shutdown(ctx)
			g.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to start listener %s: %w", l.Name(), err)
		}
	}

	g.state.Store(int32(StateRunning))
	g.logger.Info("gateway started",
		observability.String("address", g.listener.Addr()),
		observability.String("admin_address", g.admin.Addr()),
	)
	return nil
}

// Stop drains the listeners, stops background work and closes the store.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.runtime.Load().cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
	}

	g.shutdown(ctx)
	err := g.store.Close()

	g.state.Store(int32(StateStopped))
	g.logger.Info("gateway stopped")
	return err
}

func (g *Gateway) shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range []*Listener{g.listener, g.admin} {
		if l == nil {
			continue
		}
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			if err := l.Stop(ctx); err != nil {
				g.logger.Error("failed to stop listener",
					observability.String("name", l.Name()),
					observability.Error(err),
				)
			}
		}(l)
	}
	wg.Wait()

	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Unlock()
	g.wg.Wait()
}

// Reload swaps in a runtime built from cfg. On error the current runtime
// stays in effect. Settings read only at startup are listed in a warning.
func (g *Gateway) Reload(cfg *config.Config) error {
	if cfg == nil {
		return ErrNilConfig
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	rt, err := g.buildRuntime(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	prev := g.runtime.Swap(rt).cfg
	if fields := restartRequired(prev, cfg); len(fields) > 0 {
		g.logger.Warn("changed settings take effect after a restart",
			observability.String("fields", strings.Join(fields, ",")),
		)
	}

	g.logger.Info("gateway configuration reloaded",
		observability.Int("routes", rt.rules.Len()),
		observability.Int("route_policies", len(rt.policies)),
	)
	return nil
}

// restartRequired names the settings that differ between prev and next
// but are only read when the gateway starts.
func restartRequired(prev, next *config.Config) []string {
	var fields []string
	changed := func(name string, differs bool) {
		if differs {
			fields = append(fields, name)
		}
	}

	changed("server.address", prev.Server.Address != next.Server.Address)
	changed("server.readTimeout", prev.Server.ReadTimeout != next.Server.ReadTimeout)
	changed("server.writeTimeout", prev.Server.WriteTimeout != next.Server.WriteTimeout)
	changed("admin.address", prev.Admin.Address != next.Admin.Address)
	changed("logging", prev.Logging != next.Logging)
	changed("tracing", prev.Tracing != next.Tracing)
	changed("rateLimit.store", prev.RateLimit.Store != next.RateLimit.Store)
	changed("rateLimit.redis", prev.RateLimit.Redis != next.RateLimit.Redis)

	pr, nr := prev.Registry, next.Registry
	changed("registry.source", pr.Source != nr.Source)
	changed("registry.refreshInterval", pr.RefreshInterval != nr.RefreshInterval)
	changed("registry.heartbeatTTL", pr.HeartbeatTTL != nr.HeartbeatTTL)
	changed("registry.evictionGrace", pr.EvictionGrace != nr.EvictionGrace)
	changed("registry.stalenessThreshold", pr.StalenessThreshold != nr.StalenessThreshold)
	changed("registry.sweepInterval", pr.SweepInterval != nr.SweepInterval)
	changed("registry.static", !slices.Equal(pr.Static, nr.Static))
	changed("registry.http", pr.HTTP != nr.HTTP)
	changed("registry.consul", pr.Consul.Address != nr.Consul.Address ||
		pr.Consul.Datacenter != nr.Consul.Datacenter ||
		pr.Consul.Token != nr.Consul.Token ||
		pr.Consul.WaitTime != nr.Consul.WaitTime ||
		!slices.Equal(pr.Consul.Services, nr.Consul.Services))

	return fields
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Config returns the configuration currently in effect.
func (g *Gateway) Config() *config.Config {
	return g.runtime.Load().cfg
}

// View returns the registry view.
func (g *Gateway) View() *registry.View {
	return g.view
}

// Addr returns the bound public address, or "" before Start.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr()
}

// AdminAddr returns the bound admin address, or "" before Start.
func (g *Gateway) AdminAddr() string {
	if g.admin == nil {
		return ""
	}
	return g.admin.Addr()
}
