package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-messenger/internal/audit"
	"github.com/weiawesome/wes-messenger/internal/config"
	"github.com/weiawesome/wes-messenger/internal/presence"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades authenticated requests into push connections.
type WSHandler struct {
	registry *presence.Registry
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(registry *presence.Registry, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		registry: registry,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.GetUserID(c)
	l := log.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := presence.NewClient(uuid.New().String(), userID, conn, h.registry, h.wsCfg)
	h.registry.Register(client)

	// The request context ends with this handler; the connection outlives it.
	connLogger := l.With().Str(log.FieldConnID, client.ID()).Logger()
	ctx := log.WithLogger(context.Background(), connLogger)
	audit.Log(ctx, audit.ActionConnect, userID, "push connection opened")
	connLogger.Debug().Int("connected_users", h.registry.Count()).Msg("push connection registered")

	go client.WritePump()
	go func() {
		client.ReadPump()
		audit.Log(ctx, audit.ActionDisconnect, userID, "push connection closed")
	}()
}
