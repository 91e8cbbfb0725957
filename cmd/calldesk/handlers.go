package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/app"
	"github.com/vovakirdan/calldesk/internal/config"
	applog "github.com/vovakirdan/calldesk/internal/log"
)

// loadConfig resolves configuration and the process logger.
func loadConfig(flags *rootFlags) (config.Config, string, *zerolog.Logger, error) {
	bootstrap := applog.New("warn")
	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return cfg, path, bootstrap, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, path, applog.New(cfg.LogLevel), nil
}

// openClient loads configuration and builds the client bundle. When
// --metrics-addr is set the cache metrics are served until ctx ends.
func openClient(ctx context.Context, flags *rootFlags) (*app.Client, config.Config, *zerolog.Logger, error) {
	cfg, _, logger, err := loadConfig(flags)
	if err != nil {
		return nil, cfg, logger, err
	}

	reg := prometheus.NewRegistry()
	cl, err := app.NewClient(&cfg, logger, reg)
	if err != nil {
		return nil, cfg, logger, err
	}

	if flags.metricsAddr != "" {
		serveMetrics(ctx, flags.metricsAddr, reg, logger)
	}
	return cl, cfg, logger, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zerolog.Logger) {
	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &stdhttp.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving client metrics")
}

func requireIdentity(cfg config.Config) error {
	if cfg.Identity == "" {
		return fmt.Errorf("identity is not configured: set identity in the config file or CALLDESK_IDENTITY")
	}
	return nil
}
