// Package cli provides the cobra command glue for services that run a
// protected task under a lockward worker. The hosting application supplies
// the task; everything else (config, logging, metrics, health, tracing,
// signals) is wired here.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lockward/lockward/pkg/config"
	"github.com/lockward/lockward/pkg/distlock"
	"github.com/lockward/lockward/pkg/distlock/memlock"
	"github.com/lockward/lockward/pkg/distlock/mongolock"
	"github.com/lockward/lockward/pkg/distlock/pglock"
	"github.com/lockward/lockward/pkg/distlock/redislock"
	"github.com/lockward/lockward/pkg/health"
	"github.com/lockward/lockward/pkg/observability/logger"
	"github.com/lockward/lockward/pkg/observability/tracing"
	"github.com/lockward/lockward/pkg/version"
)

const shutdownTimeout = 10 * time.Second

// Options configures the command tree for one service.
type Options struct {
	// ServiceName names the binary in help output and version info.
	ServiceName string
	// Task is the protected unit of work the worker guards.
	Task distlock.Task
}

// Execute builds and runs the root command.
func Execute(opts Options) error {
	return NewRootCommand(opts).Execute()
}

// NewRootCommand returns the service command tree: run and version.
func NewRootCommand(opts Options) *cobra.Command {
	serviceName := strings.TrimSpace(opts.ServiceName)
	if serviceName == "" {
		serviceName = "lockward"
	}

	var configFile string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         serviceName + " runs its periodic work on at most one instance at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerRootFlags(root.PersistentFlags(), &configFile)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire the distributed lock and run the protected task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Task == nil {
				return errors.New("no task configured for this service")
			}
			cfg, err := config.NewViperLoader(configFile, "").Load()
			if err != nil {
				return err
			}
			return runService(cmd.Context(), serviceName, cfg, opts.Task)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Current(serviceName)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n",
				info.Service, info.Version, info.Commit, info.BuildTime)
		},
	}

	root.AddCommand(runCmd, versionCmd)
	return root
}

func registerRootFlags(fs *pflag.FlagSet, configFile *string) {
	fs.StringVarP(configFile, "config", "c", "", "path to config file")
}

func runService(parent context.Context, serviceName string, cfg *config.Config, task distlock.Task) error {
	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.Level(cfg.Log.Level),
		Format: logger.Format(cfg.Log.Format),
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName: serviceName,
		Environment: cfg.Service.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Enabled:     cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	strategy, err := buildStrategy(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build lock strategy: %w", err)
	}
	defer closeStrategy(strategy, log)

	registry := health.NewRegistry()
	registry.Register(distlock.NewStrategyHealthChecker("lock-backend", strategy, cfg.Lock.OperationTimeout))

	metricsServer := startMetricsServer(cfg.Server.MetricsAddr, registry, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", "error", err)
		}
	}()

	worker, err := distlock.New(strategy, task, log, distlock.Config{
		Name:                    cfg.Lock.Name,
		OwnerID:                 cfg.Lock.OwnerID,
		TTL:                     cfg.Lock.TTL,
		RenewFraction:           cfg.Lock.RenewFraction,
		ClockSkewMargin:         cfg.Lock.ClockSkewMargin,
		OperationTimeout:        cfg.Lock.OperationTimeout,
		AcquireRetry:            cfg.Lock.AcquireRetry.Backoff(),
		CancellationGracePeriod: cfg.Lock.CancellationGracePeriod,
		RenewFailurePolicy:      distlock.RenewFailurePolicy(cfg.Lock.RenewFailurePolicy),
		RestartOnLoss:           cfg.Lock.RestartOnLoss,
	})
	if err != nil {
		return err
	}

	log.Info("starting lock worker",
		"service", serviceName,
		"lock", cfg.Lock.Name,
		"owner_id", worker.OwnerID(),
		"backend", string(cfg.Backend.Type),
	)
	return worker.Start(ctx)
}

func buildStrategy(ctx context.Context, cfg *config.Config, log logger.Logger) (distlock.Strategy, error) {
	switch cfg.Backend.Type {
	case config.BackendMemory:
		return memlock.New(cfg.Lock.Name), nil
	case config.BackendPostgres:
		return pglock.New(pglock.Config{
			URL:              cfg.Backend.Postgres.URL,
			Table:            cfg.Backend.Postgres.Table,
			Key:              cfg.Lock.Name,
			OperationTimeout: cfg.Lock.OperationTimeout,
		}, log)
	case config.BackendRedis:
		return redislock.New(redislock.Config{
			URL:              cfg.Backend.Redis.URL,
			Prefix:           cfg.Backend.Redis.Prefix,
			Key:              cfg.Lock.Name,
			OperationTimeout: cfg.Lock.OperationTimeout,
		}, log)
	case config.BackendMongoDB:
		return mongolock.New(ctx, mongolock.Config{
			URI:              cfg.Backend.MongoDB.URI,
			Database:         cfg.Backend.MongoDB.Database,
			Collection:       cfg.Backend.MongoDB.Collection,
			Key:              cfg.Lock.Name,
			OperationTimeout: cfg.Lock.OperationTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

func closeStrategy(strategy distlock.Strategy, log logger.Logger) {
	if closer, ok := strategy.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn("strategy close failed", "error", err)
		}
	}
}

func startMetricsServer(addr string, registry *health.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if registry.Healthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return server
}
