package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/callengine"
	"github.com/vovakirdan/calldesk/internal/config"
	"github.com/vovakirdan/calldesk/internal/phone"
	"github.com/vovakirdan/calldesk/internal/proto"
	"github.com/vovakirdan/calldesk/internal/store"
	"github.com/vovakirdan/calldesk/internal/utils"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

// CallsHandlers provides HTTP handlers for media tokens, outbound dialing,
// call history and transcripts.
type CallsHandlers struct {
	store    store.Store
	tokens   callengine.TokenIssuer
	callCost int64
	poll     time.Duration
	limiter  *dialLimiter
	log      *zerolog.Logger
}

// NewCallsHandlers creates a new calls handlers instance.
func NewCallsHandlers(st store.Store, tokens callengine.TokenIssuer, cfg *config.DevServer, logger *zerolog.Logger) *CallsHandlers {
	poll := cfg.StreamPoll
	if poll <= 0 {
		poll = time.Second
	}
	return &CallsHandlers{
		store:    st,
		tokens:   tokens,
		callCost: cfg.CallCost,
		poll:     poll,
		limiter:  newDialLimiter(cfg.DialsPerMinute),
		log:      logger,
	}
}

// AddSegmentRequest is the body of POST /calls/:id/transcript.
type AddSegmentRequest struct {
	ParticipantIdentity string  `json:"participantIdentity" binding:"required"`
	StartTime           float64 `json:"startTime"`
	Text                string  `json:"text" binding:"required"`
}

// EndCallRequest is the optional body of POST /calls/:id/end.
type EndCallRequest struct {
	Status string `json:"status"`
}

// Token issues a media join token.
// GET /livekit/token?room=&identity=
func (h *CallsHandlers) Token(c *gin.Context) {
	sessionIdentity, ok := identityFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "session required")
		return
	}

	room := strings.TrimSpace(c.Query("room"))
	if room == "" {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "room is required")
		return
	}
	identity := strings.TrimSpace(c.Query("identity"))
	if identity == "" {
		identity = sessionIdentity
	}

	info, err := h.tokens.IssueJoinInfo(c.Request.Context(), room, identity, identity)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to issue join token")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "failed to issue token")
		return
	}

	c.JSON(http.StatusOK, proto.TokenResponse{
		Token: info.Token,
		Room:  info.RoomName,
		URL:   info.URL,
	})
}

// StartOutboundCall charges the caller and records a new outbound call.
// POST /livekit/calls/outbound
func (h *CallsHandlers) StartOutboundCall(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "session required")
		return
	}

	var req proto.OutboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid outbound call request")
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if !phone.IsValidE164(req.PhoneNumber) {
		abortWithError(c, http.StatusBadRequest, CodeInvalidPhoneNumber, "phoneNumber must be E.164")
		return
	}
	if strings.TrimSpace(req.PhoneNumberID) == "" {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "phoneNumberId is required")
		return
	}
	if !h.limiter.allow(identity) {
		abortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "too many outbound calls")
		return
	}

	participant := strings.TrimSpace(req.UserIdentity)
	if participant == "" {
		participant = identity
	}

	call := &store.Call{
		ID:              uuid.NewString(),
		Direction:       store.CallDirectionOutbound,
		Status:          store.CallStatusRinging,
		DestinationE164: req.PhoneNumber,
		RoomName:        utils.NewRoomName(),
		Participant:     participant,
		PhoneNumberID:   req.PhoneNumberID,
		Identity:        identity,
		StartedAt:       time.Now().UTC(),
		Metadata:        outboundMetadata(req),
	}

	if err := h.store.CreateOutboundCall(c.Request.Context(), call, h.callCost); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			abortWithError(c, http.StatusPaymentRequired, CodeInsufficientBalance, "insufficient balance")
			return
		}
		h.log.Error().Err(err).Str("identity", identity).Msg("failed to create outbound call")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}

	h.log.Info().
		Str("call_id", call.ID).
		Str("room", call.RoomName).
		Str("identity", identity).
		Msg("outbound call created")

	c.JSON(http.StatusOK, proto.OutboundCallResponse{
		Room:        call.RoomName,
		Participant: participant,
		SIPParticipant: &proto.SIPParticipant{
			ParticipantID:       "PA_" + utils.NewID(),
			ParticipantIdentity: "sip_" + strings.TrimPrefix(req.PhoneNumber, "+"),
			RoomName:            call.RoomName,
			SIPCallID:           call.ID,
		},
	})
}

func outboundMetadata(req proto.OutboundCallRequest) map[string]any {
	md := map[string]any{}
	if req.AgentName != "" {
		md["agentName"] = req.AgentName
	}
	if req.Channel != "" {
		md["channel"] = req.Channel
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// ListCalls returns one page of call history, newest first.
// GET /calls?direction=&status=&limit=&offset=
func (h *CallsHandlers) ListCalls(c *gin.Context) {
	direction, ok := parseDirection(c.Query("direction"))
	if !ok {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid direction")
		return
	}
	status, ok := parseStatus(c.Query("status"))
	if !ok {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid status")
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	calls, err := h.store.ListCalls(c.Request.Context(), store.CallFilter{
		Direction: direction,
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list calls")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: callsToRecords(calls)})
}

// EndCall marks a call finished and records its duration.
// POST /calls/:id/end
func (h *CallsHandlers) EndCall(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}

	var req EndCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid request body")
			return
		}
	}
	status := store.CallStatusCompleted
	if req.Status != "" {
		parsed, valid := parseStatus(req.Status)
		if !valid || liveStatus(parsed) {
			abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid final status")
			return
		}
		status = parsed
	}

	if liveStatus(call.Status) {
		now := time.Now().UTC()
		call.Status = status
		call.EndedAt = &now
		call.DurationSeconds = int(now.Sub(call.StartedAt).Seconds())
		if err := h.store.UpdateCall(c.Request.Context(), call); err != nil {
			h.log.Error().Err(err).Str("call_id", call.ID).Msg("failed to end call")
			abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
			return
		}
		h.log.Info().Str("call_id", call.ID).Str("status", string(status)).Msg("call ended")
	}

	c.JSON(http.StatusOK, callToRecord(call))
}

// Transcript returns the stored transcript of a call.
// GET /calls/:id/transcript
func (h *CallsHandlers) Transcript(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}

	segs, err := h.store.ListSegments(c.Request.Context(), call.ID)
	if err != nil {
		h.log.Error().Err(err).Str("call_id", call.ID).Msg("failed to list transcript")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}

	c.JSON(http.StatusOK, dataResponse{Data: segmentsToProto(segs)})
}

// AddSegment appends a transcript segment to a call.
// POST /calls/:id/transcript
func (h *CallsHandlers) AddSegment(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}

	var req AddSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if req.StartTime < 0 {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "startTime must not be negative")
		return
	}

	seg := &store.TranscriptSegment{
		ID:                  uuid.NewString(),
		CallID:              call.ID,
		ParticipantIdentity: req.ParticipantIdentity,
		StartTime:           req.StartTime,
		Text:                req.Text,
		CreatedAt:           time.Now().UTC(),
	}
	if err := h.store.AddSegment(c.Request.Context(), seg); err != nil {
		h.log.Error().Err(err).Str("call_id", call.ID).Msg("failed to add segment")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}

	c.JSON(http.StatusCreated, segmentToProto(seg))
}

// StreamTranscript replays a call's transcript as server-sent events and
// keeps following it while the call is live.
// GET /calls/:id/transcript/stream
func (h *CallsHandlers) StreamTranscript(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := h.log.With().Str("call_id", call.ID).Logger()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if liveStatus(call.Status) {
		account, err := h.store.GetAccount(ctx, call.Identity)
		if err == nil && account.Balance <= 0 {
			h.sendEvent(c, proto.StreamEventError, proto.ErrorBody{
				Code:    CodeInsufficientBalance,
				Message: "live transcription requires a positive balance",
			})
			return
		}
	}

	sent := make(map[string]struct{})
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		segs, err := h.store.ListSegments(ctx, call.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read transcript")
			h.sendEvent(c, proto.StreamEventError, proto.ErrorBody{Code: CodeInternal, Message: "transcript unavailable"})
			return
		}
		for _, seg := range segs {
			if _, dup := sent[seg.ID]; dup {
				continue
			}
			sent[seg.ID] = struct{}{}
			h.sendEvent(c, proto.StreamEventSegment, segmentToProto(seg))
		}

		if !liveStatus(call.Status) {
			h.sendEvent(c, proto.StreamEventDone, gin.H{"segments": len(sent)})
			log.Debug().Int("segments", len(sent)).Msg("transcript stream finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		refreshed, err := h.store.GetCall(ctx, call.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to refresh call")
			h.sendEvent(c, proto.StreamEventError, proto.ErrorBody{Code: CodeInternal, Message: "call unavailable"})
			return
		}
		call = refreshed
	}
}

func (h *CallsHandlers) sendEvent(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}

// loadCall resolves :id or writes the error response.
func (h *CallsHandlers) loadCall(c *gin.Context) (*store.Call, bool) {
	id := c.Param("id")
	call, err := h.store.GetCall(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "call not found")
			return nil, false
		}
		h.log.Error().Err(err).Str("call_id", id).Msg("failed to load call")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return nil, false
	}
	return call, true
}
