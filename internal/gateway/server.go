package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lms-cloud/gateway/internal/auth"
	"github.com/lms-cloud/gateway/internal/circuitbreaker"
	"github.com/lms-cloud/gateway/internal/config"
	"github.com/lms-cloud/gateway/internal/logging"
	"github.com/lms-cloud/gateway/internal/metrics"
	"github.com/lms-cloud/gateway/internal/middleware"
	"github.com/lms-cloud/gateway/internal/proxy"
	"github.com/lms-cloud/gateway/internal/ratelimit"
	"github.com/lms-cloud/gateway/internal/registry"
	"github.com/lms-cloud/gateway/internal/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server owns the public listener, the admin listener and the
// dispatch pipeline between them.
type Server struct {
	cfg       *config.Config
	routes    *router.Table
	breakers  *circuitbreaker.Manager
	collector *metrics.Collector
	pipeline  *Pipeline
	limStore  ratelimit.Store
}

// NewServer wires the gateway from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	collector := metrics.NewCollector()

	table := router.New()
	for _, rc := range cfg.Routes {
		table.Add(rc)
	}

	authenticator, err := auth.NewAuthenticator(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	resolver, err := registry.NewStatic(cfg.Upstreams)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	var store ratelimit.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)
		logging.Info("Rate limiting via Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = ratelimit.NewMemoryStore()
		logging.Info("Rate limiting in process memory")
	}

	breakers := circuitbreaker.NewManager(
		cfg.CircuitBreaker.FailureThreshold,
		cfg.CircuitBreaker.Cooldown,
		func(route string, from, to circuitbreaker.State) {
			logging.Warn("Circuit breaker state change",
				zap.String("route", route),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			collector.SetBreakerState(route, int(to))
			collector.RecordBreakerTransition(route, to.String())
		},
	)

	s := &Server{
		cfg:       cfg,
		routes:    table,
		breakers:  breakers,
		collector: collector,
		limStore:  store,
	}
	s.pipeline = &Pipeline{
		routes:        table,
		authenticator: authenticator,
		rules:         auth.NewRules(cfg.Authorization),
		limiter:       ratelimit.NewLimiter(store, cfg.RateLimit.Profiles),
		breakers:      breakers,
		proxy:         proxy.New(proxy.Config{Resolver: resolver}),
		fallback:      NewFallback(),
		collector:     collector,
	}
	return s, nil
}

// Handler builds the public handler: probe and fallback endpoints
// answered at the edge, everything else dispatched through the
// pipeline wrapped in the ambient middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", Health)
	mux.HandleFunc("/health/ready", Ready)
	mux.HandleFunc("/health/live", Live)
	mux.Handle("/fallback/", NewFallback())
	mux.Handle("/", s.pipeline)

	chain := middleware.NewChain(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog("/health", "/health/ready", "/health/live"),
		CORS(s.cfg.CORS),
	)
	return chain.Then(mux)
}

// Run serves until the context is cancelled or a termination signal
// arrives, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	public := &http.Server{
		Addr:              s.cfg.Listen.Address,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Listen.ReadTimeout,
		WriteTimeout:      s.cfg.Listen.WriteTimeout,
		IdleTimeout:       s.cfg.Listen.IdleTimeout,
		ReadHeaderTimeout: s.cfg.Listen.ReadHeaderTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logging.Info("Gateway listening", zap.String("addr", public.Addr))
		if err := public.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var admin *http.Server
	if s.cfg.Admin.Enabled {
		admin = &http.Server{
			Addr:              s.cfg.Admin.Address,
			Handler:           s.adminMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logging.Info("Admin listening", zap.String("addr", admin.Addr))
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	if ms, ok := s.limStore.(*ratelimit.MemoryStore); ok {
		go pruneLoop(ctx, ms)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []string
	if err := public.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err.Error())
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %s", strings.Join(errs, "; "))
	}
	return nil
}

// pruneLoop evicts idle in-memory buckets while the server runs.
func pruneLoop(ctx context.Context, store *ratelimit.MemoryStore) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Prune(30 * time.Minute)
		}
	}
}
