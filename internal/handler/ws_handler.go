package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/openprep/testprep-backend/internal/middleware"
	"github.com/openprep/testprep-backend/internal/model"
	"github.com/openprep/testprep-backend/internal/service"
	ws "github.com/openprep/testprep-backend/internal/websocket"
)

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

// WSHandler streams a running attempt: countdown ticks and warnings out,
// answers and the submit flow in.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/tests/:test_id/attempt/stream
// Upgrades to WebSocket for the live attempt: the server pushes a tick
// every second plus one-shot warnings, and accepts answer and submission
// actions on the same connection.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test ID"})
		return
	}

	rt, err := h.attemptService.Runtime(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active attempt for this test"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("test_id", testID.String()).
		Logger()

	wsLog.Info().Msg("Learner connected")

	// All writes funnel through one goroutine; gorilla/websocket permits
	// only a single concurrent writer.
	outbound := make(chan interface{}, 16)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case msg := <-outbound:
				if err := ws.WriteTyped(conn, msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	go h.pushTimerEvents(rt, outbound, done)

	h.readLoop(conn, wsLog, rt, testID, claims.UserID, outbound)
	close(done)
}

// send queues a message without ever blocking the caller. A full buffer
// means the connection is too slow to care about this message.
func send(outbound chan<- interface{}, done <-chan struct{}, msg interface{}) {
	select {
	case outbound <- msg:
	case <-done:
	default:
	}
}

// pushTimerEvents emits a tick each second and forwards warning and
// submitted events from the attempt runtime. Stops on submission or when
// the connection goes away.
func (h *WSHandler) pushTimerEvents(rt *service.AttemptRuntime, outbound chan<- interface{}, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case ev := <-rt.Events:
			switch ev.Type {
			case service.AttemptEventWarning:
				send(outbound, done, ws.WarningResponse{
					Event:       ws.EventWarning,
					MinutesLeft: ev.MinutesLeft,
				})
			case service.AttemptEventSubmitted:
				send(outbound, done, submittedResponse(ev.Record))
				return
			}

		case <-ticker.C:
			if rt.Orch.Submitted() {
				return
			}
			send(outbound, done, ws.TickResponse{
				Event:            ws.EventTick,
				RemainingSeconds: int(rt.Timer.Remaining().Seconds()),
				Countdown:        rt.Timer.Countdown(),
				MinutesLeft:      rt.Timer.MinutesLeft(),
			})
		}
	}
}

func submittedResponse(rec *model.TestAttemptRecord) ws.SubmittedResponse {
	return ws.SubmittedResponse{
		Event:      ws.EventSubmitted,
		Trigger:    rec.Trigger,
		AttemptID:  rec.AttemptID.String(),
		Score:      rec.Score,
		TotalMarks: rec.TotalMarks,
		Percentage: rec.Percentage,
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, rt *service.AttemptRuntime, testID uuid.UUID, userID int, outbound chan<- interface{}) {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(wsLog, testID, userID, &msg, outbound)

		case ws.ActionSubmitRequest:
			confirmation, err := rt.Orch.RequestManualSubmit()
			if err != nil {
				send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
				continue
			}
			send(outbound, nil, ws.ConfirmPendingResponse{
				Event:          ws.EventConfirmPending,
				Answered:       confirmation.Answered,
				TotalQuestions: confirmation.TotalQuestions,
			})

		case ws.ActionSubmitConfirm:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			rec, err := rt.Orch.ConfirmManualSubmit(ctx)
			cancel()
			if err != nil {
				send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
				continue
			}
			send(outbound, nil, submittedResponse(rec))

		case ws.ActionSubmitCancel:
			if err := rt.Orch.CancelManualSubmit(); err != nil {
				send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
				continue
			}
			send(outbound, nil, gin.H{"event": ws.EventCancelled})

		case ws.ActionPing:
			send(outbound, nil, ws.PongResponse{Event: ws.EventPong})

		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

// handleAnswer records one answer through the same path as the REST
// endpoint, so autosave semantics are identical.
func (h *WSHandler) handleAnswer(wsLog zerolog.Logger, testID uuid.UUID, userID int, msg *ws.RequestPayload, outbound chan<- interface{}) {
	if msg.QID == "" || msg.OptionIndex == nil {
		send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: "q_id and option_index are required"})
		return
	}

	qid, err := uuid.Parse(msg.QID)
	if err != nil {
		send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := &model.SelectAnswerRequest{QuestionID: qid, OptionIndex: *msg.OptionIndex}
	if err := h.attemptService.SelectAnswer(ctx, testID, userID, req); err != nil {
		wsLog.Debug().Err(err).Str("q_id", msg.QID).Msg("Answer rejected")
		send(outbound, nil, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
		return
	}

	send(outbound, nil, ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID})
}
