package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xylose/go-threadcache"
	"github.com/xylose/go-threadcache/core"
	"github.com/xylose/go-threadcache/internal/config"
	obs "github.com/xylose/go-threadcache/observability/prometheus"
)

// defaultThreads is used when neither --threads nor NUM_PTHREADS is set.
const defaultThreads = 2

// app holds the state shared by the subcommands of one invocation.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

func newApp() *app {
	return &app{v: config.NewViper()}
}

// load reads the configuration and installs the global zap logger.
func (a *app) load() error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	a.cfg = cfg
	a.logger = logger
	zap.ReplaceGlobals(logger)
	return nil
}

// threads returns the worker count for the command's pool.
func (a *app) threads() int {
	if a.cfg.MaxThreads != 0 {
		return a.cfg.MaxThreads
	}
	if n, ok := config.ThreadsFromEnv(); ok {
		return n
	}
	return defaultThreads
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// runtimeEnv is a started pool plus the optional metrics endpoint.
type runtimeEnv struct {
	pool   *threadcache.WorkerPool
	poller *obs.SnapshotPoller
	server *http.Server

	logger       *zap.Logger
	undoMaxprocs func()
}

// start creates and starts the pool described by the configuration.
func (a *app) start(ctx context.Context) (*runtimeEnv, error) {
	env := &runtimeEnv{logger: a.logger, undoMaxprocs: func() {}}

	undo, err := maxprocs.Set(maxprocs.Logger(a.logger.Sugar().Debugf))
	if err != nil {
		a.logger.Warn("failed to align GOMAXPROCS", zap.Error(err))
	} else {
		env.undoMaxprocs = undo
	}

	var metrics core.Metrics
	var reg *prom.Registry
	if a.cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter(a.cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			env.undoMaxprocs()
			return nil, err
		}
		metrics = exporter
	}

	logger := core.NewZapLogger(a.logger).Named(a.cfg.Pool.ID)
	env.pool = threadcache.NewWorkerPoolWithConfig(a.cfg.Pool.ID, a.threads(), a.cfg.PoolOptions(logger, metrics))
	if err := env.pool.Start(ctx); err != nil {
		env.undoMaxprocs()
		return nil, err
	}

	if reg != nil {
		if err := env.serveMetrics(ctx, a.cfg.Metrics, reg); err != nil {
			env.stop()
			return nil, err
		}
	}
	return env, nil
}

func (e *runtimeEnv) serveMetrics(ctx context.Context, c config.MetricsConfig, reg *prom.Registry) error {
	poller, err := obs.NewSnapshotPoller(c.Namespace, reg, c.PollInterval)
	if err != nil {
		return err
	}
	poller.AddPool(e.pool.ID(), e.pool)
	poller.Start(ctx)
	e.poller = poller

	ln, err := net.Listen("tcp", c.Address)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	e.logger.Info("serving metrics", zap.String("address", ln.Addr().String()))
	return nil
}

// stop drains the pool, then tears down the metrics endpoint.
func (e *runtimeEnv) stop() {
	e.pool.Shutdown()
	e.poller.Stop()

	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			e.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	e.undoMaxprocs()
	_ = e.logger.Sync()
}
