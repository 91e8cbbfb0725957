package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/auth"
	"github.com/vovakirdan/calldesk/internal/proto"
)

// Error codes returned in the error envelope.
const (
	CodeBadRequest          = "bad_request"
	CodeUnauthorized        = "unauthorized"
	CodeNotFound            = "not_found"
	CodeInvalidPhoneNumber  = "invalid_phone_number"
	CodeInsufficientBalance = "insufficient_balance"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

// dataResponse wraps list payloads.
type dataResponse struct {
	Data any `json:"data"`
}

// abortWithError writes the error envelope and stops the handler chain.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, proto.ErrorEnvelope{
		Error: &proto.ErrorBody{Code: code, Message: message},
	})
}

// SessionHandlers provides the session cookie endpoint.
type SessionHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewSessionHandlers creates a new session handlers instance.
func NewSessionHandlers(authService *auth.Service, logger *zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{
		authService: authService,
		log:         logger,
	}
}

// CreateSession issues a session cookie for an identity.
// POST /auth/session
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	var req proto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid session request")
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.CreateSession(c.Request.Context(), req.Identity)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidIdentity) {
			abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid identity")
			return
		}
		h.log.Error().Err(err).Str("identity", req.Identity).Msg("failed to create session")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}

	c.SetCookie(
		SessionCookieName,
		token,
		h.authService.TTL(),
		"/",
		"",
		false, // secure (set to true in production with HTTPS)
		true,  // httpOnly
	)

	h.log.Info().Str("identity", req.Identity).Msg("session created")
	c.JSON(http.StatusOK, gin.H{"identity": req.Identity})
}
