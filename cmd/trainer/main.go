package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"network-security/internal/cfg"
	"network-security/internal/metrics"
	"network-security/internal/trainer"
)

func main() {
	var (
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		metricsAddr = flag.String("metrics-addr", "", "Serve /metrics on this address while training (e.g. :9090)")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if *metricsAddr != "" {
		startMetricsServer(ctx, *metricsAddr, m)
	}

	code := run(ctx, settings, m)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, settings cfg.Settings, m *metrics.Metrics) int {
	t, closer, err := trainer.FromSettings(settings, m)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize model trainer")
		return 1
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close tracking store")
		}
	}()

	start := time.Now()
	artifact, runErr := t.Run(ctx, settings.Data)
	pushMetrics(settings, m)
	if runErr != nil {
		log.Error().Err(runErr).Dur("elapsed", time.Since(start)).Msg("Model training failed")
		return 1
	}

	log.Info().
		Str("family", string(artifact.Family)).
		Str("params", artifact.Params.String()).
		Float64("train_score", artifact.TrainScore).
		Float64("test_score", artifact.TestScore).
		Str("model", artifact.TrainedModelPath).
		Str("version", artifact.Version).
		Dur("elapsed", time.Since(start)).
		Msg("Model training complete")
	return 0
}

// pushMetrics sends final values to the Pushgateway when one is configured.
func pushMetrics(settings cfg.Settings, m *metrics.Metrics) {
	if settings.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Push(ctx, settings.PushgatewayURL, settings.PushJob); err != nil {
		log.Warn().Err(err).Msg("Failed to push metrics")
	}
}

func startMetricsServer(ctx context.Context, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
