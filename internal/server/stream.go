package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	socketWriteWait       = 10 * time.Second
	socketPongWait        = 60 * time.Second
	socketPingPeriod      = (socketPongWait * 9) / 10
	maxSocketMessageBytes = 8 << 10

	socketActionSend = "send"
	socketActionRead = "read"
	socketEventError = "error"
	socketEventRead  = "chat.read"
)

// socketCommand is a client frame on the chat socket.
type socketCommand struct {
	Action string `json:"action"`
	ChatID string `json:"chat_id"`
	Body   string `json:"body"`
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, unsubscribe := h.realtime.Subscribe(ctx, currentUserID(c))
	defer unsubscribe()

	ticker := time.NewTicker(realtimeHeartbeatInterval)
	defer ticker.Stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": h.clock().UTC()})
			return true
		}
	})
}

func (h *httpHandler) socketUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowsAnyOrigin(h.origins) {
				return true
			}
			return lo.Contains(h.origins, origin)
		},
	}
}

// handleChatSocket carries realtime notifications out and chat commands in over one websocket.
func (h *httpHandler) handleChatSocket(c *gin.Context) {
	userID := currentUserID(c)
	upgrader := h.socketUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := h.realtime.Subscribe(ctx, userID)
	defer unsubscribe()

	replies := make(chan RealtimeMessage, 8)
	go h.readSocket(ctx, cancel, conn, userID, replies)
	h.writeSocket(ctx, conn, stream, replies)
}

func (h *httpHandler) readSocket(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, userID string, replies chan<- RealtimeMessage) {
	defer cancel()

	conn.SetReadLimit(maxSocketMessageBytes)
	if err := conn.SetReadDeadline(time.Now().Add(socketPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("websocket closed", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var command socketCommand
		if err := json.Unmarshal(raw, &command); err != nil {
			h.reply(ctx, replies, h.socketError("invalid_message", err))
			continue
		}
		if reply, ok := h.runSocketCommand(ctx, userID, command); ok {
			h.reply(ctx, replies, reply)
		}
	}
}

// runSocketCommand returns a frame to send back when the command has no realtime echo.
func (h *httpHandler) runSocketCommand(ctx context.Context, userID string, command socketCommand) (RealtimeMessage, bool) {
	switch command.Action {
	case socketActionSend:
		// Successful sends reach the sender through the dispatcher.
		if _, err := h.chat.SendMessage(ctx, userID, command.ChatID, command.Body); err != nil {
			return h.socketError(apperr.ReasonOf(err, "internal_error"), err), true
		}
		return RealtimeMessage{}, false
	case socketActionRead:
		updated, err := h.chat.MarkRead(ctx, userID, command.ChatID)
		if err != nil {
			return h.socketError(apperr.ReasonOf(err, "internal_error"), err), true
		}
		return RealtimeMessage{
			EventType: socketEventRead,
			Payload:   gin.H{"chat_id": command.ChatID, "marked_read": updated},
			Timestamp: h.clock().UTC(),
		}, true
	default:
		return h.socketError("unknown_action", nil), true
	}
}

func (h *httpHandler) socketError(reason string, err error) RealtimeMessage {
	payload := gin.H{"error": reason}
	if code := apperr.CodeOf(err); code != "" {
		payload["code"] = code
	}
	return RealtimeMessage{EventType: socketEventError, Payload: payload, Timestamp: h.clock().UTC()}
}

func (h *httpHandler) reply(ctx context.Context, replies chan<- RealtimeMessage, message RealtimeMessage) {
	select {
	case replies <- message:
	case <-ctx.Done():
	}
}

func (h *httpHandler) writeSocket(ctx context.Context, conn *websocket.Conn, stream <-chan RealtimeMessage, replies <-chan RealtimeMessage) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()

	write := func(message RealtimeMessage) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
			return false
		}
		return conn.WriteJSON(message) == nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(socketWriteWait))
			return
		case message, ok := <-stream:
			if !ok || !write(message) {
				return
			}
		case message := <-replies:
			if !write(message) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
		}
	}
}
