// Command streamsubd runs a standalone streaming-subscription client: one
// streaminghost.Host multiplexing a single WebSocket connection, a
// host.Host registry bridging it to per-subscription state machines, an
// orphanfinder.Finder sweeping for stalled subscriptions, and an admin API
// exposing health/readiness/metrics/operator endpoints. Grounded on
// cmd/server/main.go's signal handling and graceful shutdown shape.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamsub/internal/adminapi"
	"streamsub/internal/config"
	"streamsub/internal/host"
	"streamsub/internal/metrics"
	"streamsub/internal/orphanfinder"
	"streamsub/internal/parser"
	"streamsub/internal/streaminghost"
	"streamsub/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Logging.Format != "console" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("service_base_url", cfg.Service.BaseURL).
		Str("ws_base_url", cfg.Streaming.WSBaseURL).
		Int("admin_port", cfg.Admin.Port).
		Msg("starting streamsubd")

	httpTransport := transport.New(cfg.Service.BaseURL,
		transport.WithTimeout(cfg.Service.Timeout),
		transport.WithMaxRetries(cfg.Service.MaxRetries),
		transport.WithLogger(log.Logger),
	)
	defer httpTransport.Close()

	streamHost := streaminghost.New(cfg.Streaming.WSBaseURL,
		streaminghost.WithPingInterval(cfg.Streaming.PingInterval),
		streaminghost.WithLogger(log.Logger),
	)

	facade := parser.NewFacade()

	// httpTransport already prefixes every request path with BaseURL, so the
	// registry's service path is empty.
	registry := host.New("", httpTransport, facade, streamHost,
		host.WithLogger(log.Logger),
	)

	finder := orphanfinder.New(cfg.Streaming.OrphanCheckInterval,
		orphanfinder.WithLogger(log.Logger),
	)

	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectErrors := make(chan error, 1)
	go func() {
		connectErrors <- streamHost.Connect(ctx)
	}()
	go finder.Run(ctx)

	var adminServer *adminapi.Server
	adminErrors := make(chan error, 1)
	if cfg.Admin.Enabled {
		adminServer = adminapi.NewServer(adminapi.ServerConfig{
			Port:         cfg.Admin.Port,
			ReadTimeout:  cfg.Admin.ReadTimeout,
			WriteTimeout: cfg.Admin.WriteTimeout,
		}, registry, collector, log.Logger)

		go func() {
			adminErrors <- adminServer.Start()
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-connectErrors:
		if err != nil {
			log.Error().Err(err).Msg("streaming connection failed")
		}
	case err := <-adminErrors:
		if err != nil {
			log.Error().Err(err).Msg("admin API failed")
		}
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down admin API gracefully")
		}
	}
	if err := streamHost.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close streaming connection")
	}

	log.Info().Msg("shutdown complete")
}
