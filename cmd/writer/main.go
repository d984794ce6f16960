package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tunogya/coil/pkg/cache"
	"github.com/tunogya/coil/pkg/config"
	"github.com/tunogya/coil/pkg/monitor"
	"github.com/tunogya/coil/pkg/outcome"
	"github.com/tunogya/coil/pkg/queue/nats"
	"github.com/tunogya/coil/pkg/store/duckdb"
	"github.com/tunogya/coil/pkg/telemetry"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "writer",
		Short: "Track consolidation patterns on streamed daily bars",
		Long: `Consumes daily bar batches from NATS, advances one tracker per symbol,
stores bars and patterns in DuckDB, publishes lifecycle events and the
current pattern of each symbol, and labels resolved patterns once their
forward window is complete.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Writer failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.SetupLogger()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	log.Info().Str("path", cfg.DuckDB.Path).Msg("Opening DuckDB")
	db, err := duckdb.Open(cfg.DuckDB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var patterns *cache.PatternCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		patterns = cache.NewPatternCache(rdb, cfg.Redis)
	}

	log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS")
	nc, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return err
	}
	defer nc.Close()
	if err := nc.CreateStream(ctx, nats.Subjects); err != nil {
		return err
	}

	tcfg := cfg.Tracker("")
	tcfg.Metrics = metrics
	w := &worker{
		bars:      duckdb.NewBarRepo(db),
		patterns:  duckdb.NewPatternRepo(db),
		samples:   duckdb.NewSampleRepo(db),
		cache:     patterns,
		publisher: nc,
		monitor:   monitor.New(monitor.Config{Tracker: tcfg}),
		labeler:   outcome.NewLabeler(duckdb.NewBarRepo(db), outcome.NewEvaluator(cfg.Outcome), 0, log.Logger),
		metrics:   metrics,
		seeded:    make(map[string]bool),
		log:       log.With().Str("component", "writer").Logger(),
	}

	consumer, err := nc.Subscribe(ctx, nats.SubjectBarIngest, cfg.Writer.Consumer, func(msg jetstream.Msg) error {
		return w.handleBars(ctx, msg.Data())
	})
	if err != nil {
		return err
	}
	defer consumer.Stop()

	srv := &http.Server{Addr: cfg.Writer.MetricsAddr, Handler: metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	log.Info().Str("metrics", cfg.Writer.MetricsAddr).Msg("Writer started, waiting for bars")
	w.labelLoop(ctx, cfg.Writer.LabelInterval, cfg.Writer.LabelBatch)

	log.Info().Msg("Shutting down writer")
	for _, st := range w.monitor.Statistics() {
		log.Info().Msg(st.String())
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
