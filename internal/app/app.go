// Package app wires configuration, storage, bundle loading and the HTTP
// API into one serving process.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/vdonnefort/lisa/internal/api/http"
	"github.com/vdonnefort/lisa/internal/config"
	"github.com/vdonnefort/lisa/internal/observability"
	"github.com/vdonnefort/lisa/internal/server"
	"github.com/vdonnefort/lisa/internal/storage"
	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/internal/tracedb"
)

// ServeSpec names the trace to serve: a local bundle directory, or a
// trace ID to fetch from the configured archive.
type ServeSpec struct {
	// TraceID is the archived bundle to fetch and serve
	TraceID string

	// BundleDir is a local bundle directory; it takes precedence over
	// TraceID
	BundleDir string

	// Platform describes the traced target, enabling the
	// platform-dependent enrichment passes
	Platform *config.Platform
}

// App manages the trace server lifecycle.
type App struct {
	cfg  *config.Config
	spec ServeSpec

	// Shared resources
	store    storage.ObjectStorage
	archive  *storage.BundleArchive
	pool     *tracedb.ConnectionPool
	stats    *observability.LoadStats
	shutdown *server.ShutdownManager

	// Loaded trace
	traceID string
	bundle  *tracedb.Bundle
	trace   *trace.Trace

	// Service components
	apiServer *http.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration and serve target.
func New(cfg *config.Config, spec ServeSpec) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if spec.BundleDir == "" && spec.TraceID == "" {
		return nil, fmt.Errorf("nothing to serve: need a bundle directory or a trace ID")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:  cfg,
		spec: spec,
	}, nil
}

// Start initializes shared resources, loads the trace and starts the API
// server.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if err := a.loadTrace(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to load trace: %w", err)
	}

	if err := a.startAPIService(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start API service: %w", err)
	}

	a.startStatsMaintenance(ctx)

	log.Printf("lisa serving trace %s on %s", a.traceID, a.cfg.HTTP.Addr)
	return nil
}

// startStatsMaintenance prunes idle entries out of the access stats on a
// timer, keeping /v1/stats bounded on long-running servers.
func (a *App) startStatsMaintenance(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.stats.Prune()
			}
		}
	}()
}

// initSharedResources initializes the connection pool, access stats,
// shutdown manager and, when a trace ID is to be fetched, the bundle
// archive behind it.
func (a *App) initSharedResources() error {
	a.pool = tracedb.NewConnectionPool(tracedb.PoolConfig{
		MaxBundles:     a.cfg.Load.PoolSize,
		ConnsPerBundle: a.cfg.Load.Concurrency,
		IdleTimeout:    5 * time.Minute,
	})
	a.stats = observability.NewLoadStats(24 * time.Hour)
	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	// The archive is only reachable in fetch mode; serving a local
	// bundle directory never touches object storage.
	if a.spec.BundleDir != "" {
		return nil
	}

	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.store, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		a.store, err = storage.NewS3Storage(
			context.Background(),
			a.cfg.Storage.S3.Bucket,
			s3Cfg,
		)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage initialized: type=%s", a.cfg.Storage.Type)

	cacheBytes := int64(a.cfg.Storage.CacheSizeMB) * 1024 * 1024
	a.archive = storage.NewBundleArchive(a.store, a.cfg.Storage.DownloadDir, cacheBytes)
	return nil
}

// loadTrace resolves the bundle directory, decodes the bundle and builds
// the trace served by the API.
func (a *App) loadTrace(ctx context.Context) error {
	dir := a.spec.BundleDir
	if dir == "" {
		fetched, err := a.archive.Fetch(ctx, a.spec.TraceID)
		if err != nil {
			return fmt.Errorf("failed to fetch bundle %s: %w", a.spec.TraceID, err)
		}
		dir = fetched
		log.Printf("Bundle %s fetched to %s", a.spec.TraceID, dir)
	}

	bundle, err := tracedb.Open(ctx, dir, a.pool)
	if err != nil {
		return err
	}
	a.bundle = bundle

	in, err := bundle.Load(ctx, tracedb.LoadSpec{
		Events:      a.cfg.Load.Events,
		Concurrency: a.cfg.Load.Concurrency,
		Platform:    a.spec.Platform,
	})
	if err != nil {
		return err
	}

	tr, err := trace.New(in,
		trace.WithNormalizedTime(a.cfg.Load.NormalizeTime),
		trace.WithDebug(a.cfg.Debug),
	)
	if err != nil {
		return err
	}
	a.trace = tr

	a.traceID = bundle.Metadata().TraceID
	if a.traceID == "" {
		a.traceID = a.spec.TraceID
	}

	log.Printf("Trace loaded: %d events, %.3fs span", len(tr.Available()), tr.TimeRange())
	return nil
}

// startAPIService starts the trace API HTTP server.
func (a *App) startAPIService(ctx context.Context) error {
	api := httpapi.NewMux(a.traceID, a.trace, a.stats)

	// The health endpoint stays outside the shutdown gate so probes see
	// the server drain instead of vanish.
	mux := http.NewServeMux()
	mux.Handle("/v1/", server.ShutdownMiddleware(a.shutdown)(api))
	mux.HandleFunc("/health", a.healthHandler("lisa"))

	a.apiServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.apiServer.Shutdown(closeCtx)
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("Trace API listening on %s", a.cfg.HTTP.Addr)
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Trace API server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the API server and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")

	if a.cancel != nil {
		a.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	a.cleanup()

	log.Printf("lisa stopped")
	return nil
}

// cleanup releases all shared resources.
func (a *App) cleanup() {
	if a.bundle != nil {
		a.bundle.Close()
		a.bundle = nil
	}

	if a.pool != nil {
		a.pool.Close()
	}
}

// Trace returns the loaded trace, nil before Start.
func (a *App) Trace() *trace.Trace {
	return a.trace
}

// TraceID returns the identity of the served trace.
func (a *App) TraceID() string {
	return a.traceID
}

// healthHandler returns a health check handler for the given service.
func (a *App) healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"%s","trace_id":"%s"}`, service, a.traceID)
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}
