package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/hub"
	"github.com/craft-console/backend/internal/ws"
)

// WebSocketHandler upgrades connections and binds them to console sessions.
type WebSocketHandler struct {
	hub      *hub.Hub
	commands ws.CommandSink
	log      *zap.SugaredLogger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(h *hub.Hub, commands ws.CommandSink, log *zap.SugaredLogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      h,
		commands: commands,
		log:      log,
	}
}

// RegisterRoutes registers the WebSocket route on the given router group.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.Connect)
}

// Connect handles GET /ws: it upgrades the request and starts a session.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	conn, err := ws.Upgrade(c.Writer, c.Request)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	session := ws.NewSession(conn, h.hub, h.commands, h.log)
	session.Start()
}
