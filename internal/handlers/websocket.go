package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sitekeep/internal/middleware"
	ws "sitekeep/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub    *ws.Hub
	tokens middleware.TokenParser
	logger *zap.SugaredLogger
}

func NewWebSocketHandler(hub *ws.Hub, tokens middleware.TokenParser, logger *zap.SugaredLogger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, tokens: tokens, logger: logger}
}

// ServeWs subscribes a dashboard to expiry alerts for the fingerprint named
// by its session token.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	caller, err := h.tokens.Parse(c.Query("token"))
	if err != nil {
		h.logger.Debugw("websocket session rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid or expired session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("failed to upgrade connection", "error", err)
		return
	}

	client := &ws.Client{
		Hub:         h.hub,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		Fingerprint: caller.Fingerprint,
	}

	if !client.Hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *WebSocketHandler) writePump(client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		client.Hub.Unregister(client)
		client.Conn.Close()
	}()

	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debugw("websocket read error", "fingerprint", client.Fingerprint, "error", err)
			}
			break
		}
	}
}
