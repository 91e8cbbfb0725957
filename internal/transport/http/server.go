package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/auth"
	"github.com/vovakirdan/calldesk/internal/callengine"
	"github.com/vovakirdan/calldesk/internal/config"
	"github.com/vovakirdan/calldesk/internal/store"
)

// Deps are the services the dev backend routes to.
type Deps struct {
	Auth   *auth.Service
	Store  store.Store
	Tokens callengine.TokenIssuer

	// Done stops background housekeeping such as the dial limiter reset.
	Done <-chan struct{}
}

// NewServer builds the development backend HTTP server.
func NewServer(deps Deps, cfg *config.DevServer, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires every route of the REST contract.
func NewRouter(deps Deps, cfg *config.DevServer, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	sessions := NewSessionHandlers(deps.Auth, logger)
	router.POST("/auth/session", sessions.CreateSession)

	calls := NewCallsHandlers(deps.Store, deps.Tokens, cfg, logger)
	calls.limiter.startReset(deps.Done)
	authed := router.Group("/", SessionMiddleware(deps.Auth, logger))
	{
		authed.GET("/livekit/token", calls.Token)
		authed.POST("/livekit/calls/outbound", calls.StartOutboundCall)
		authed.GET("/calls", calls.ListCalls)
		authed.POST("/calls/:id/end", calls.EndCall)
		authed.GET("/calls/:id/transcript", calls.Transcript)
		authed.POST("/calls/:id/transcript", calls.AddSegment)
		authed.GET("/calls/:id/transcript/stream", calls.StreamTranscript)
	}

	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, stdhttp.StatusNotFound, CodeNotFound, "route not found")
	})

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
