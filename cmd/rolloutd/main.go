// rolloutd is a reference daemon hosting the progressive-rollout control
// system: it polls the policy authority, runs the rollout control loop, and
// serves the operator API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/rolloutkit/pkg/config"
	"github.com/dmitrymomot/rolloutkit/pkg/controller"
	"github.com/dmitrymomot/rolloutkit/pkg/evaluator"
	"github.com/dmitrymomot/rolloutkit/pkg/exposure"
	"github.com/dmitrymomot/rolloutkit/pkg/fetcher"
	"github.com/dmitrymomot/rolloutkit/pkg/httpapi"
	"github.com/dmitrymomot/rolloutkit/pkg/httpserver"
	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/policy"
	"github.com/dmitrymomot/rolloutkit/pkg/requestid"
)

type appConfig struct {
	PolicyURL       string `env:"ROLLOUT_POLICY_URL,required"`
	MetricsURL      string `env:"ROLLOUT_METRICS_URL"`
	BootstrapFile   string `env:"ROLLOUT_BOOTSTRAP_FILE"`
	TargetsFile     string `env:"ROLLOUT_TARGETS_FILE"`
	SnapshotBackend string `env:"ROLLOUT_SNAPSHOT_BACKEND" envDefault:"file"`
	SnapshotFile    string `env:"ROLLOUT_SNAPSHOT_FILE" envDefault:"rollout-policy.json"`
}

func main() {
	var (
		appCfg    appConfig
		logCfg    logger.Config
		fetchCfg  fetcher.Config
		ctrlCfg   controller.Config
		serverCfg httpserver.Config
		pgCfg     exposure.PGConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&fetchCfg)
	config.MustLoad(&ctrlCfg)
	config.MustLoad(&serverCfg)
	config.MustLoad(&pgCfg)

	log := logger.NewFromConfig(logCfg, logger.WithAttrs(slog.String("service", "rolloutd")))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, appCfg, fetchCfg, ctrlCfg, serverCfg, pgCfg); err != nil {
		log.Error("rolloutd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	log *slog.Logger,
	appCfg appConfig,
	fetchCfg fetcher.Config,
	ctrlCfg controller.Config,
	serverCfg httpserver.Config,
	pgCfg exposure.PGConfig,
) error {
	snapshotter, closeSnap, err := buildSnapshotter(ctx, appCfg)
	if err != nil {
		return err
	}
	defer closeSnap()

	store := policy.NewStore(
		policy.WithSnapshotter(snapshotter),
		policy.WithStoreLogger(log),
	)

	// Seed order: bootstrap file first, then any newer persisted snapshot.
	if appCfg.BootstrapFile != "" {
		seed, err := policy.LoadBootstrapFile(appCfg.BootstrapFile)
		if err != nil {
			return err
		}
		if err := store.Publish(ctx, seed); err != nil && !isWarning(err) {
			return err
		}
		log.Info("bootstrap policy loaded", slog.Int64("version", seed.Version))
	}
	if err := store.LoadSnapshot(ctx); err != nil {
		log.Warn("policy snapshot unreadable, continuing",
			slog.String("error", err.Error()))
	}

	sink, closeSink, err := buildSink(ctx, log, pgCfg)
	if err != nil {
		return err
	}
	defer closeSink()

	eval := evaluator.New(store, evaluator.WithSink(sink))

	source, err := fetcher.NewHTTPSource(appCfg.PolicyURL)
	if err != nil {
		return err
	}
	fetch, err := fetcher.New(store, source,
		fetcher.WithPollInterval(fetchCfg.PollInterval),
		fetcher.WithMaxRetries(fetchCfg.MaxRetries),
		fetcher.WithShutdownTimeout(fetchCfg.ShutdownTimeout),
		fetcher.WithLogger(log),
		fetcher.WithDegradedHandler(func(err error) {
			log.Error("policy fetching degraded, serving cached policy",
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return err
	}

	var feed controller.MetricFeed
	if appCfg.MetricsURL != "" {
		feed, err = controller.NewHTTPMetricFeed(appCfg.MetricsURL, nil)
		if err != nil {
			return err
		}
	}
	ctrl, err := controller.New(store, feed,
		controller.WithTickInterval(ctrlCfg.TickInterval),
		controller.WithMetricWindow(ctrlCfg.MetricWindow),
		controller.WithLogger(log),
		controller.WithAlertHandler(func(featureKey string, value float64) {
			log.Error("rollout alert: feature rolled back",
				slog.String("feature_key", featureKey),
				slog.Float64("metric_value", value))
		}),
	)
	if err != nil {
		return err
	}
	if appCfg.TargetsFile != "" {
		if err := ctrl.LoadTargetsFile(appCfg.TargetsFile); err != nil {
			return err
		}
	}

	if err := fetch.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = fetch.Stop() }()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop() }()

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requestLogger(log))
	r.Mount("/rollout", httpapi.Router(httpapi.RouterOptions{
		Store:      store,
		Controller: ctrl,
		Evaluator:  eval,
	}))

	srv := httpserver.New(serverCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}

func buildSnapshotter(ctx context.Context, cfg appConfig) (policy.Snapshotter, func(), error) {
	switch cfg.SnapshotBackend {
	case "redis":
		var redisCfg policy.RedisConfig
		config.MustLoad(&redisCfg)
		snap, err := policy.ConnectRedisSnapshotter(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return snap, func() { _ = snap.Close() }, nil
	default:
		snap, err := policy.NewFileSnapshotter(cfg.SnapshotFile)
		if err != nil {
			return nil, nil, err
		}
		return snap, func() {}, nil
	}
}

func buildSink(ctx context.Context, log *slog.Logger, pgCfg exposure.PGConfig) (exposure.Sink, func(), error) {
	if pgCfg.ConnectionString == "" {
		return exposure.NewLogSink(log), func() {}, nil
	}

	storage, err := exposure.ConnectPGStorage(ctx, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.EnsureSchema(ctx); err != nil {
		storage.Close()
		return nil, nil, err
	}

	sink := exposure.NewWriterSink(storage, exposure.WriterOptions{Logger: log})
	closer := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sink.Close(closeCtx)
		storage.Close()
	}
	return sink, closer, nil
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			}
			if attr, ok := requestid.Attr(r); ok {
				attrs = append(attrs, attr)
			}
			log.LogAttrs(r.Context(), slog.LevelDebug, "api request", attrs...)
			next.ServeHTTP(w, r)
		})
	}
}

// isWarning reports whether a publish error leaves the store in a usable
// state: snapshot failures are warning-class, and a stale bootstrap just
// means a newer snapshot or fetch already won.
func isWarning(err error) bool {
	return errors.Is(err, policy.ErrSnapshot) || errors.Is(err, policy.ErrStalePolicy)
}
