// Package app wires configuration into runnable components: the local
// development backend and the client bundle used by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/auth"
	"github.com/vovakirdan/calldesk/internal/callengine/livekit"
	"github.com/vovakirdan/calldesk/internal/config"
	"github.com/vovakirdan/calldesk/internal/store"
	"github.com/vovakirdan/calldesk/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/calldesk/internal/transport/http"
)

// DevServer runs the REST backend the client talks to during development.
type DevServer struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	stop            chan struct{}
	log             *zerolog.Logger
}

// NewDevServer constructs the backend from cfg.DevServer.
func NewDevServer(cfg *config.Config, logger *zerolog.Logger) (*DevServer, error) {
	dev := cfg.DevServer

	st, err := sqlite.New(dev.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", dev.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(dev.JWTSecret),
		Issuer:   "calldesk-devserver",
		Audience: "calldesk",
		TTL:      dev.SessionTTL,
	}
	authService := auth.NewService(st, jwtConfig, dev.InitialBalance)

	stop := make(chan struct{})
	server := transporthttp.NewServer(transporthttp.Deps{
		Auth:   authService,
		Store:  st,
		Tokens: livekit.NewTokenIssuer(dev.LiveKitAPIKey, dev.LiveKitAPISecret, dev.LiveKitURL),
		Done:   stop,
	}, &dev, logger)

	return &DevServer{
		server:          server,
		shutdownTimeout: dev.ShutdownTimeout,
		store:           st,
		stop:            stop,
		log:             logger,
	}, nil
}

// Addr returns the listen address.
func (d *DevServer) Addr() string {
	return d.server.Addr
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (d *DevServer) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		d.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
		defer cancel()

		d.log.Info().Msg("shutting down http server")
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.cleanup()
			return err
		}

		d.cleanup()
		return <-serverErr
	}
}

// cleanup stops housekeeping and closes the database.
func (d *DevServer) cleanup() {
	close(d.stop)
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn().Err(err).Msg("failed to close store")
		} else {
			d.log.Info().Msg("store closed")
		}
	}
}
