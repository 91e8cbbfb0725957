package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/auth"
)

const (
	// SessionCookieName is the cookie carrying the session JWT.
	SessionCookieName = "calldesk_session"
	// ContextKeyIdentity is the context key for storing the session identity.
	ContextKeyIdentity = "identity"
)

// SessionMiddleware creates a middleware that validates the session cookie.
func SessionMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			logger.Debug().Str("path", c.Request.URL.Path).Msg("missing session cookie")
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "session required")
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid session token")
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "session expired or invalid")
			return
		}

		c.Set(ContextKeyIdentity, claims.Identity)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// identityFrom returns the identity stored by SessionMiddleware.
func identityFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return "", false
	}
	identity, ok := v.(string)
	return identity, ok && identity != ""
}
