package codeservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/api"
	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
	"github.com/CARBONMOLECULE09/bear-code/internal/config"
	emb "github.com/CARBONMOLECULE09/bear-code/internal/embeddings"
	"github.com/CARBONMOLECULE09/bear-code/internal/factory"
	"github.com/CARBONMOLECULE09/bear-code/internal/health"
	"github.com/CARBONMOLECULE09/bear-code/internal/ledger"
	"github.com/CARBONMOLECULE09/bear-code/internal/logger"
	"github.com/CARBONMOLECULE09/bear-code/internal/outbox"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
	"github.com/CARBONMOLECULE09/bear-code/internal/services"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Run starts the code search HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("bearcode-server")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = logger.WithLevel(log, cfg.LogLevel)

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("vector_store", cfg.VectorStore).
		Int("http_port", cfg.HTTPPort).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Int64("index_cost", cfg.IndexCost).
		Int64("search_cost", cfg.SearchCost).
		Msg("Code search service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	router := buildRouter(cfg, log, deps, svcHealth)

	if cfg.OutboxInProcess {
		w := outbox.NewWorker(deps.store.Outbox(), deps.index, outbox.Config{
			BatchSize: cfg.OutboxBatchSize,
			Interval:  cfg.OutboxInterval,
		}, log)
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("in-process outbox worker stopped")
			}
		}()
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

type dependencies struct {
	store    store.Store
	index    searchindex.Index
	embedder emb.EmbeddingProvider
}

func (d dependencies) close(log zerolog.Logger) {
	if c, ok := d.store.(store.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("store close")
		}
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (dependencies, error) {
	var d dependencies
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return d, err
	}
	d.store = st

	d.embedder = factory.NewEmbeddingProvider(ctx, cfg, log)
	if d.embedder == nil && cfg.VectorStore != "memory" {
		return d, fmt.Errorf("embedding provider not configured")
	}

	idx, err := factory.NewSearchIndex(ctx, cfg, d.embedder, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Search index adapter unavailable")
		return d, err
	}
	d.index = idx
	return d, nil
}

func buildRouter(cfg *config.Config, log zerolog.Logger, d dependencies, svcHealth *health.ServiceHealthChecker) http.Handler {
	l := ledger.New(d.store, log, cfg.DefaultCredits)
	code := services.NewCodeService(l, d.store, d.index,
		services.Costs{Index: cfg.IndexCost, Search: cfg.SearchCost}, log,
		services.WithIndexReadiness(svcHealth))
	return api.NewRouter(api.Deps{
		Ledger: l,
		Code:   code,
		Stats:  services.NewStatsService(d.store),
		Users:  auth.NewHeaderResolver(cfg.IsLocal()),
		Health: svcHealth,
	})
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, d dependencies) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := cfg.HealthProbeTimeout()
	interval := cfg.HealthInterval()

	storeChecker := store.NewStoreHealthChecker(d.store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	idxChecker := searchindex.NewSearchIndexHealthChecker(d.index, log, probeTimeout)
	go idxChecker.Start(ctx, interval)
	checkers = append(checkers, idxChecker)

	if d.embedder != nil {
		embChecker := emb.NewProviderHealthChecker(d.embedder, log, probeTimeout)
		go embChecker.Start(ctx, interval)
		checkers = append(checkers, embChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is interval*2 with a floor of 60 seconds.
func startupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
