package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/config"
	httpAdapter "github.com/aretw0/conductor/pkg/adapters/http"
	redisAdapter "github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/aretw0/conductor/pkg/observability"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/aretw0/conductor/pkg/schema"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/aretw0/conductor/pkg/transport/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Serve consumes tasks from Redis until ctx is cancelled. The ops server runs
// alongside when metrics.addr is set.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis.url: %w", err)
	}
	client := goredis.NewClient(opts)
	defer client.Close()
	broker := redisAdapter.NewFromClient(client, redisAdapter.WithPrefix(cfg.Redis.Prefix))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(promReg)
	if err != nil {
		return err
	}

	c, err := Build(cfg, logger, true)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	redact, err := middleware.NewRedactMiddleware(cfg.Redaction.Patterns, cfg.Queues.Results, cfg.Queues.Reports)
	if err != nil {
		return err
	}
	r := c.Runner(middleware.Chain(broker, redact), runner.WithLifecycleHooks(observability.Merge(
		observability.LoggingHooks(logger),
		metrics.Hooks(),
	)))

	validator, err := schema.NewValidator()
	if err != nil {
		return err
	}
	mws := []runner.Middleware{runner.ValidationMiddleware(validator, logger)}
	if cfg.Lock.Enabled {
		mgr := session.NewManager(
			session.WithLocker(redisAdapter.NewLocker(client, cfg.Redis.Prefix)),
			session.WithTTL(cfg.Lock.TTL),
			session.WithLogger(logger),
		)
		mws = append(mws, runner.GuardMiddleware(mgr, logger))
	}
	svc := runner.NewService(broker, r.Process,
		runner.WithTaskQueue(cfg.Queues.Tasks),
		runner.WithServiceLogger(logger),
		runner.WithMiddleware(mws...),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })

	if cfg.Metrics.Addr != "" {
		handler, err := httpAdapter.NewHandler(
			httpAdapter.WithFunctions(c.Registry()),
			httpAdapter.WithGatherer(promReg),
			httpAdapter.WithReady(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
			httpAdapter.WithVersion(conductor.Version),
			httpAdapter.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("ops server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("conductor started",
		"version", conductor.Version,
		"workflows", len(c.Documents()),
		"queue", cfg.Queues.Tasks,
		"config", cfg.File(),
	)
	return g.Wait()
}
