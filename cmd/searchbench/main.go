// Command searchbench loads a product catalog, builds the in-memory
// full-text index and serves it over HTTP, optionally next to a PostgreSQL
// substring-search baseline for comparison.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Rifat977/search-bench/internal/analytics"
	"github.com/Rifat977/search-bench/internal/analytics/collector"
	"github.com/Rifat977/search-bench/internal/analytics/snapshot"
	"github.com/Rifat977/search-bench/internal/baseline"
	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/internal/gateway/router"
	"github.com/Rifat977/search-bench/internal/indexer"
	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	"github.com/Rifat977/search-bench/internal/searcher"
	"github.com/Rifat977/search-bench/internal/searcher/cache"
	"github.com/Rifat977/search-bench/internal/searcher/handler"
	"github.com/Rifat977/search-bench/pkg/config"
	"github.com/Rifat977/search-bench/pkg/health"
	"github.com/Rifat977/search-bench/pkg/kafka"
	"github.com/Rifat977/search-bench/pkg/logger"
	"github.com/Rifat977/search-bench/pkg/metrics"
	"github.com/Rifat977/search-bench/pkg/middleware"
	"github.com/Rifat977/search-bench/pkg/postgres"
	"github.com/Rifat977/search-bench/pkg/ratelimit"
	pkgredis "github.com/Rifat977/search-bench/pkg/redis"
	"github.com/Rifat977/search-bench/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	catalogPath := flag.String("catalog", "", "override catalog.path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *catalogPath != "" {
		cfg.Catalog.Path = *catalogPath
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("searchbench exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		var result *multierror.Error
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				result = multierror.Append(result, cerr)
			}
		}
		if cerr := result.ErrorOrNil(); cerr != nil {
			slog.Error("shutdown close errors", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, m.Handler())
		if err != nil {
			return err
		}
		defer shutdownMetrics(context.Background())
	}

	// Index: load, build, publish. Any failure here aborts startup.
	s := schema.Products()
	analyzer, err := tokenizer.New(cfg.Indexer.Analyzer)
	if err != nil {
		return err
	}
	products, err := catalog.LoadFile(cfg.Catalog.Path, catalog.LoadOptions{Lenient: cfg.Catalog.Lenient})
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	engine := indexer.NewEngine(s, analyzer, cfg.Indexer, m)
	if err := engine.Build(ctx, products); err != nil {
		return err
	}
	srch, err := searcher.New(s, engine, analyzer, searcher.Options{
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxResults:      cfg.Search.MaxResults,
		Timeout:         cfg.Search.Timeout,
		Tracing:         cfg.Tracing.Enabled,
		TraceSampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		st := engine.Stats()
		if !st.Ready {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not built"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", st.Documents)}
	})

	deps := handler.Deps{Searcher: srch, Engine: engine, Metrics: m}

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			closers = append(closers, rc)
			deps.Cache = cache.New(rc, cfg.Redis.CacheTTL, m)
			checker.RegisterOptional("redis", health.Ping(rc.Ping))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	analyticsAPI := analytics.NewHandler(aggregator)
	var trackers collector.Fanout

	if cfg.Compare.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("compare enabled but postgres unavailable: %w", err)
		}
		closers = append(closers, db)
		checker.RegisterOptional("postgres", health.Ping(db.Ping))

		store := baseline.NewStore(db, baseline.Options{
			QueryTimeout: cfg.Compare.QueryTimeout,
			Breaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, _, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			},
		})
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		if cfg.Compare.Seed {
			if err := store.Seed(ctx, products); err != nil {
				return err
			}
		}
		deps.Baseline = store
		checker.RegisterOptional("baseline", health.Ping(store.Healthy))

		if cfg.Compare.SnapshotInterval > 0 {
			snapshots := snapshot.NewStore(db)
			if err := snapshots.Migrate(ctx); err != nil {
				return err
			}
			analyticsAPI.WithSnapshots(snapshots.Loader())
			saved := snapshots.Run(ctx, aggregator, cfg.Compare.SnapshotInterval)
			defer func() {
				stop()
				<-saved
			}()
		}
		slog.Info("baseline comparison enabled", "records", len(products))
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		closers = append(closers, producer)
		checker.RegisterOptional("kafka", health.Ping(producer.Ping))

		batch := collector.NewBatchCollector(producer, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		batch.Start(ctx)
		defer func() {
			stop()
			batch.Close()
		}()
		trackers = append(trackers, batch)

		consumer := kafka.NewConsumer(cfg.Kafka, analytics.HandleEvent(aggregator))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
		slog.Info("analytics streaming enabled", "topic", cfg.Kafka.Topic)
	} else {
		trackers = append(trackers, aggregator)
	}
	deps.Tracker = trackers

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		go limiter.RunCleanup(ctx, 5*time.Minute)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(handler.New(deps), analyticsAPI, checker, router.Options{
			Limiter:        limiter,
			Metrics:        m,
			RequestTimeout: cfg.Server.WriteTimeout,
			CORS:           middleware.DefaultCORSConfig(),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	stats := engine.Stats()
	slog.Info("searchbench listening",
		"addr", server.Addr,
		"documents", stats.Documents,
		"terms", stats.Terms,
		"analyzer", stats.Analyzer,
		"compare", cfg.Compare.Enabled,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("searchbench stopped")
	return nil
}
