package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TinoTau/lingua-1-sub000/internal/models"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream upgrades to a websocket carrying the jobs of one session in order.
// Every job message gets a result reply; an end message flushes the session,
// replies with the released text and closes the connection.
func (h *sessionHandlers) stream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log := logging.WithStream(sessionID, connID)
	start := time.Now()
	metrics.DefaultMetrics.RecordStreamStart()
	defer func() {
		metrics.DefaultMetrics.RecordStreamEnd(time.Since(start).Seconds())
	}()
	log.Info().Msg("Stream opened")

	send := func(reply models.StreamReply) bool {
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Str("type", reply.Type).Msg("Stream write failed")
			return false
		}
		return true
	}

	ctx := r.Context()
	jobs := 0
	for {
		var msg models.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Stream read failed")
			}
			break
		}

		switch msg.Type {
		case models.StreamTypeJob:
			if msg.Job == nil || msg.Result == nil {
				if !send(models.StreamReply{Type: models.StreamTypeError, Error: "job and result are required"}) {
					return
				}
				continue
			}
			job := *msg.Job
			job.SessionID = sessionID
			out, err := h.app.Handler.HandleJob(ctx, job, *msg.Result)
			if err != nil {
				log.Error().Err(err).Int64("utteranceIndex", job.UtteranceIndex).Msg("Job failed")
				if !send(models.StreamReply{Type: models.StreamTypeError, Error: err.Error()}) {
					return
				}
				continue
			}
			jobs++
			resp := out.Response()
			if !send(models.StreamReply{Type: models.StreamTypeResult, Response: &resp}) {
				return
			}

		case models.StreamTypeEnd:
			text, err := h.app.Handler.EndSession(ctx, sessionID)
			reply := models.StreamReply{Type: models.StreamTypeEnded, FlushedText: text}
			if err != nil {
				reply = models.StreamReply{Type: models.StreamTypeError, Error: err.Error()}
			}
			log.Info().Int("jobs", jobs).Msg("Stream ended session")
			if !send(reply) {
				return
			}
			if err := conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")); err != nil {
				log.Warn().Err(err).Msg("Stream close failed")
			}
			return

		default:
			if !send(models.StreamReply{Type: models.StreamTypeError, Error: "unknown message type " + msg.Type}) {
				return
			}
		}
	}
	log.Info().Int("jobs", jobs).Msg("Stream closed")
}
