package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-service/internal/auth"
	"chat-service/internal/directory"
	"chat-service/internal/models"
)

// handshakeWait bounds how long an upgraded socket may sit silent
// before sending its join frame.
const handshakeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Validate origin in production
		return true
	},
}

// ServeWS upgrades the connection and runs the join handshake: the
// first frame must be join{token, channelId}. Authentication failures
// are answered with an error frame and a close; an unknown channel
// leaves the socket open so the client can fall back to the default
// channel.
func ServeWS(hub *Hub, verifier *auth.Verifier, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "from", r.RemoteAddr, "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	var frame models.ClientFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != models.FrameJoin {
		rejectAndClose(conn, models.CodeBadPayload, "expected join frame")
		return
	}

	identity, err := verifier.Verify(r.Context(), frame.Token)
	if err != nil {
		code := models.CodeInvalidToken
		if errors.Is(err, auth.ErrRevoked) {
			code = models.CodeRevoked
		}
		slog.Warn("join rejected", "from", r.RemoteAddr, "code", code)
		rejectAndClose(conn, code, "authentication failed")
		return
	}

	client := newClient(hub, conn, identity, uuid.New().String())
	slog.Info("connection established", "conn", client.id, "user", identity.ID, "username", identity.Username, "channel", frame.ChannelID)

	go client.writePump()

	if err := hub.Join(client, frame.ChannelID); err != nil {
		if errors.Is(err, directory.ErrChannelNotFound) {
			client.enqueueError(models.CodeChannelNotFound, err.Error())
		} else {
			slog.Error("join failed", "conn", client.id, "error", err)
			hub.Disconnect(client)
			return
		}
	}

	client.readPump()
}

func rejectAndClose(conn *websocket.Conn, code, message string) {
	if payload, err := json.Marshal(models.NewErrorFrame(code, message)); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, payload)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
	conn.Close()
}
