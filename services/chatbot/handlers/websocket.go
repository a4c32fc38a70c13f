package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/pipeline"
)

// messageDeadline bounds one pipeline transaction so a hung external call
// cannot block the connection forever.
const messageDeadline = 60 * time.Second

// Client-safe rejection strings. Internal error detail is logged only.
const (
	errMalformedMessage = "malformed message"
	errUnknownRoute     = "unknown route"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket upgrades the connection and serves the conversation.
//
// Each connection is one session: a fresh session ID is minted on upgrade
// and announced to the client immediately. Inbound frames are routed by
// their discriminator: connection-open and connection-close manage the
// handshake, message-send runs the message pipeline. Malformed envelopes
// and unknown routes are rejected with distinct error frames without
// touching the store or dropping the connection.
func HandleChatWebSocket(pipe *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("New websocket session started", "sessionID", sessionID)

		if err := sendJSON(ws, datatypes.OutboundFrame{
			Type:      datatypes.FrameSessionCreated,
			SessionID: sessionID,
		}); err != nil {
			return // Close if we can't even send the first message
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				slog.Info("Websocket client disconnected", "sessionID", sessionID, "error", err.Error())
				return
			}

			var env datatypes.InboundEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				slog.Warn("Rejected malformed inbound message", "sessionID", sessionID, "error", err)
				if sendJSON(ws, datatypes.OutboundFrame{Type: datatypes.FrameError, Error: errMalformedMessage}) != nil {
					return
				}
				continue
			}
			if err := env.Validate(); err != nil {
				slog.Warn("Rejected invalid inbound envelope", "sessionID", sessionID, "error", err)
				if sendJSON(ws, datatypes.OutboundFrame{Type: datatypes.FrameError, Error: errMalformedMessage}) != nil {
					return
				}
				continue
			}

			switch env.Route {
			case datatypes.RouteConnectionOpen:
				if sendJSON(ws, datatypes.OutboundFrame{
					Type:      datatypes.FrameSessionCreated,
					SessionID: sessionID,
				}) != nil {
					return
				}

			case datatypes.RouteConnectionClose:
				slog.Info("Websocket session closed by client", "sessionID", sessionID)
				return

			case datatypes.RouteMessageSend:
				ctx, cancel := context.WithTimeout(c.Request.Context(), messageDeadline)
				reply := pipe.Process(ctx, sessionID, env.Payload.Body)
				cancel()

				if sendJSON(ws, datatypes.OutboundFrame{
					Type:       datatypes.FrameReply,
					SessionID:  sessionID,
					Text:       reply.Text,
					Escalation: reply.Response.Escalation,
				}) != nil {
					slog.Warn("Failed to deliver reply", "sessionID", sessionID)
					return
				}

			default:
				slog.Warn("Rejected unknown route", "sessionID", sessionID, "route", env.Route)
				if sendJSON(ws, datatypes.OutboundFrame{Type: datatypes.FrameError, Error: errUnknownRoute}) != nil {
					return
				}
			}
		}
	}
}
