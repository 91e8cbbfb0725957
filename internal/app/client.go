package app

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/api"
	"github.com/vovakirdan/calldesk/internal/callengine/livekit"
	"github.com/vovakirdan/calldesk/internal/config"
	"github.com/vovakirdan/calldesk/internal/query"
	"github.com/vovakirdan/calldesk/internal/service/calls"
)

// Client is the process-wide client state: one HTTP client, one query cache
// and the call service built on them.
type Client struct {
	API   *api.Client
	Cache *query.Cache
	Calls *calls.Service

	loggedOut atomic.Bool
	log       *zerolog.Logger
}

// NewClient builds the client bundle. reg may be nil.
func NewClient(cfg *config.Config, logger *zerolog.Logger, reg prometheus.Registerer) (*Client, error) {
	apiClient, err := api.New(api.Options{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.RequestTimeout,
		SessionCookie: cfg.SessionCookie,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	cl := &Client{API: apiClient, log: logger}

	cl.Cache = query.New(query.Options{
		StaleTime:      cfg.StaleTime,
		Retry:          cfg.QueryRetry,
		RetryDelay:     query.DefaultRetryDelay,
		OnUnauthorized: cl.onUnauthorized,
	}, logger, reg)

	cl.Calls = calls.New(apiClient, cl.Cache, livekit.NewConnector(logger), calls.Options{
		DefaultRegion:      cfg.DefaultRegion,
		PhoneNumberID:      cfg.PhoneNumberID,
		Identity:           cfg.Identity,
		PageSize:           cfg.PageSize,
		EnableMicOnConnect: cfg.MicOnConnect,
	}, logger)

	return cl, nil
}

// LoggedOut reports whether the backend rejected the session.
func (c *Client) LoggedOut() bool {
	return c.loggedOut.Load()
}

// onUnauthorized drops the session state; every later read refetches.
func (c *Client) onUnauthorized(err error) {
	if c.loggedOut.CompareAndSwap(false, true) {
		c.log.Warn().Err(err).Msg("session rejected by backend, login required")
	}
	c.Cache.Reset()
}
