package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/config"
	dbRedis "github.com/kailas-cloud/entsearch/internal/db/redis"
	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/search/query"
	logpkg "github.com/kailas-cloud/entsearch/internal/logger"
	"github.com/kailas-cloud/entsearch/internal/metrics"
	analyticsrepo "github.com/kailas-cloud/entsearch/internal/repository/analytics"
	indexrepo "github.com/kailas-cloud/entsearch/internal/repository/index"
	jobrepo "github.com/kailas-cloud/entsearch/internal/repository/job"
	"github.com/kailas-cloud/entsearch/internal/repository/memory"
	ratelimitrepo "github.com/kailas-cloud/entsearch/internal/repository/ratelimit"
	"github.com/kailas-cloud/entsearch/internal/source"
	"github.com/kailas-cloud/entsearch/internal/source/postgres"
	chiTransport "github.com/kailas-cloud/entsearch/internal/transport/chi"
	analyticsuc "github.com/kailas-cloud/entsearch/internal/usecase/analytics"
	healthuc "github.com/kailas-cloud/entsearch/internal/usecase/health"
	indexeruc "github.com/kailas-cloud/entsearch/internal/usecase/indexer"
	ratelimituc "github.com/kailas-cloud/entsearch/internal/usecase/ratelimit"
	reindexuc "github.com/kailas-cloud/entsearch/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/entsearch/internal/usecase/search"
	"github.com/kailas-cloud/entsearch/internal/version"
)

// indexStore is what both the indexer and the query engine need from the index.
type indexStore interface {
	indexeruc.Repository
	searchuc.IndexReader
}

// backend groups the store-backed repositories selected by database.driver.
type backend struct {
	index     indexStore
	analytics analyticsuc.Store
	rateLimit ratelimituc.Store
	jobs      reindexuc.JobRepository
	pinger    healthuc.StorePinger
	close     func()
}

type memoryPinger struct{}

func (memoryPinger) Ping(context.Context) error { return nil }

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting entsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("source_driver", cfg.Source.Driver),
	)

	domain.KeyPrefix = cfg.Storage.KeyPrefix

	// Register metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	ctx := context.Background()
	be, err := buildBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create index store", zap.Error(err))
	}
	defer be.close()
	logger.Info("Connected to index store")

	src, closeSource, err := buildSource(cfg)
	if err != nil {
		logger.Fatal("Failed to open system of record", zap.Error(err))
	}
	defer closeSource()

	// Create use case services
	limits := query.Limits{
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		MaxOffset:      cfg.Search.MaxOffset,
		MaxQueryLength: cfg.Search.MaxQueryLength,
	}
	indexerSvc := indexeruc.New(be.index, logger.Named("indexer"))
	limiter := ratelimituc.New(be.rateLimit, cfg.RateLimit.Limit, cfg.RateLimit.Window(), logger.Named("ratelimit"))
	recorder := analyticsuc.New(be.analytics, analyticsuc.Config{
		Buffer:       cfg.Analytics.Buffer,
		WriteTimeout: time.Duration(cfg.Analytics.WriteTimeoutMs) * time.Millisecond,
	}, logger.Named("analytics"))
	searchSvc := searchuc.New(be.index, limiter, recorder, searchuc.Config{
		MaxScanPerType: cfg.Search.MaxScanPerType,
		HalfLife:       cfg.Search.HalfLife(),
	}, logger.Named("search"))
	reindexSvc := reindexuc.New(be.jobs, indexerSvc, src, reindexuc.Config{
		Workers:        cfg.Reindex.Workers,
		PageSize:       cfg.Reindex.PageSize,
		MaxPageRetries: cfg.Reindex.MaxPageRetries,
		RetryBaseDelay: time.Duration(cfg.Reindex.RetryBaseDelayMs) * time.Millisecond,
		ReadsPerSecond: cfg.Reindex.ReadsPerSecond,
		LockTTL:        time.Duration(cfg.Reindex.LockTTLSec) * time.Second,
		MaxErrors:      cfg.Reindex.MaxErrors,
		QueueSize:      cfg.Reindex.QueueSize,
		PruneSkew:      time.Duration(cfg.Reindex.PruneSkewMs) * time.Millisecond,
	}, logger.Named("reindex"))
	reindexSvc.Start()

	// Pass nil interface (not typed nil pointer!) when no source is configured.
	var sourcePinger healthuc.SourcePinger
	if src != nil {
		sourcePinger = src
	}
	healthSvc := healthuc.New(be.pinger, sourcePinger)

	// Create chi server
	server := chiTransport.NewServer(indexerSvc, searchSvc, reindexSvc, recorder, healthSvc, limits, logger,
		chiTransport.WithTrustedUserHeader(cfg.Auth.TrustUserHeader),
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r, cfg.Auth.AdminKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := reindexSvc.Shutdown(shutdownCtx); err != nil {
		logger.Error("Reindex workers did not stop", zap.Error(err))
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error("Analytics buffer not drained", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildBackend creates the store-backed repositories for the configured driver.
func buildBackend(ctx context.Context, cfg config.Config) (backend, error) {
	if cfg.Database.Driver == "memory" {
		return backend{
			index:     memory.NewIndexStore(),
			analytics: memory.NewAnalyticsStore(cfg.Analytics.LogCap),
			rateLimit: memory.NewRateLimitStore(),
			jobs:      memory.NewJobStore(),
			pinger:    memoryPinger{},
			close:     func() {},
		}, nil
	}

	// valkey and redis share the rueidis client; only core commands and Lua are used.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return backend{}, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return backend{}, fmt.Errorf("database not ready: %w", err)
	}

	return backend{
		index:     indexrepo.New(store),
		analytics: analyticsrepo.New(store, cfg.Analytics.LogCap),
		rateLimit: ratelimitrepo.New(store),
		jobs:      jobrepo.New(store),
		pinger:    store,
		close:     store.Close,
	}, nil
}

// buildSource opens the system of record. It returns a nil reader for the none driver.
func buildSource(cfg config.Config) (source.Reader, func(), error) {
	if cfg.Source.Driver != "postgres" {
		return nil, func() {}, nil
	}

	tables := postgres.DefaultTables()
	for t, table := range cfg.Source.SourceTables() {
		if table == "" {
			delete(tables, t)
			continue
		}
		tables[t] = table
	}

	reader, err := postgres.Open(cfg.Source.DSN, tables)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres source: %w", err)
	}
	return reader, func() { _ = reader.Close() }, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id and tenant
			reqLogger := logger.With(
				zap.String("request_id", requestID),
				zap.String("tenant", r.Header.Get(chiTransport.HeaderTenantID)),
			)
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
