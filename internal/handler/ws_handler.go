package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/middleware"
	"github.com/stemsi/exstem-mock/internal/registry"
	"github.com/stemsi/exstem-mock/internal/response"
	"github.com/stemsi/exstem-mock/internal/session"
	"github.com/stemsi/exstem-mock/internal/validator"
	ws "github.com/stemsi/exstem-mock/internal/websocket"
)

// streamInterval is how often the section state is pushed.
const streamInterval = time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the state of a mounted section and accepts answers
// over the same connection.
type WSHandler struct {
	registry *registry.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(reg *registry.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: reg,
		log:      logger.Component(log, "ws_handler"),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SectionStream godoc
// WS /ws/v1/sections/:section_id/stream?mock_id=&token=
// The section must be mounted first. The state is pushed every second
// until the client disconnects.
func (h *WSHandler) SectionStream(c *gin.Context) {
	candidateID := middleware.CandidateID(c)
	sectionID := c.Param("section_id")
	mockID := c.Query("mock_id")
	if !validator.ValidResourceID(sectionID) || (mockID != "" && !validator.ValidResourceID(mockID)) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// SECURITY: only a section mounted by this candidate can be streamed.
	sess, err := h.registry.Section(candidateID, sectionID, mockID)
	if err != nil {
		failWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("candidate_id", candidateID).
		Str("section_id", sectionID).
		Str("mock_id", mockID).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Only this goroutine writes to conn; the reader hands replies over.
	out := make(chan interface{}, 16)
	go func() {
		defer cancel()
		h.readLoop(ctx, conn, sess, wsLog, out)
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	if err := ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, State: sess.Snapshot()}); err != nil {
		return
	}

	for {
		var msg interface{}
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Stream closed")
			return
		case <-ticker.C:
			msg = ws.StateResponse{Event: ws.EventState, State: sess.Snapshot()}
		case msg = <-out:
		}

		if err := ws.WriteTyped(conn, msg); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, wsLog zerolog.Logger, out chan<- interface{}) {
	send := func(v interface{}) {
		select {
		case out <- v:
		case <-ctx.Done():
		}
	}

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			if !validator.ValidQuestionKey(msg.QuestionKey) || len(msg.Value) == 0 {
				send(wsError(response.ErrInvalidPayload))
				continue
			}
			if !sess.SetAnswer(ctx, msg.QuestionKey, msg.Value) {
				send(wsError(response.ErrAnswerRejected))
				continue
			}
			send(ws.StateResponse{Event: ws.EventState, State: sess.Snapshot()})

		case ws.ActionBookmark:
			if !validator.ValidQuestionKey(msg.QuestionKey) {
				send(wsError(response.ErrInvalidPayload))
				continue
			}
			if !sess.ToggleBookmark(ctx, msg.QuestionKey) {
				send(wsError(response.ErrAnswerRejected))
				continue
			}
			send(ws.StateResponse{Event: ws.EventState, State: sess.Snapshot()})

		case ws.ActionFinish:
			res, err := sess.Finish(context.WithoutCancel(ctx))
			switch {
			case err == nil:
				send(ws.ResultResponse{Event: ws.EventResult, Result: res})
			case errors.Is(err, session.ErrSubmissionInFlight):
				send(ws.StateResponse{Event: ws.EventState, State: sess.Snapshot()})
			default:
				_, code := classify(err)
				wsLog.Warn().Err(err).Msg("Finish failed")
				send(wsError(code))
			}

		case ws.ActionPing:
			send(ws.PongResponse{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			send(wsError(response.ErrInvalidPayload))
		}
	}
}

func wsError(code response.ErrCode) ws.ErrorResponse {
	return ws.NewError(string(code), response.GetMessage(code))
}
