// Command relayd runs the realtime update channel server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/badarshafiq1122/mental-health-tracker/internal/auth"
	"github.com/badarshafiq1122/mental-health-tracker/internal/channel"
	"github.com/badarshafiq1122/mental-health-tracker/internal/config"
	"github.com/badarshafiq1122/mental-health-tracker/internal/events"
	"github.com/badarshafiq1122/mental-health-tracker/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger configuration lives in the config that failed to load.
		fallback := logging.New("info", "json")
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().
		Str("addr", cfg.Addr).
		Dur("heartbeat_interval", cfg.HeartbeatInterval).
		Msg("starting relay server")

	metrics := channel.NewMetrics(prometheus.DefaultRegisterer)
	validator := auth.NewValidator(cfg.JWTSecret, logger)
	registry := channel.NewRegistry(logger)
	router := channel.NewRouter(registry, metrics, logger)
	limiter := channel.NewAdmissionLimiter(cfg.IPRate, cfg.IPBurst, cfg.GlobalRate, cfg.GlobalBurst)
	server := channel.NewServer(validator, registry, limiter, metrics, cfg.HandshakeTimeout, logger)
	supervisor := channel.NewSupervisor(registry, cfg.HeartbeatInterval, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go supervisor.Run(ctx)

	var bridge *events.Bridge
	if cfg.NATSURL != "" {
		bridge, err = events.Connect(cfg.NATSURL, router, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to event broker")
		}
		if err := bridge.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe to domain events")
		}
		defer bridge.Close()
	} else {
		logger.Warn().Msg("NATS_URL not set, domain event bridge disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HandshakeTimeout,
		WriteTimeout: 0, // websocket connections write for their lifetime
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server stopped")
	}

	cancel()
	server.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	logger.Info().Msg("relay server stopped")
}
