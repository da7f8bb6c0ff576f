package websocket

import (
	"context"
	"net/http"

	"harbor-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the fronting proxy.
		return true
	},
}

// Handler upgrades HTTP requests into delivery channels.
type Handler struct {
	hub        *Hub
	authorizer *Authorizer
	log        *logger.Logger
}

func NewHandler(hub *Hub, authorizer *Authorizer, log *logger.Logger) *Handler {
	return &Handler{hub: hub, authorizer: authorizer, log: log}
}

// Serve handles GET /ws?token=... and keeps the connection open until
// the client drops.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerFromHeader(c.GetHeader("Authorization"))
	}
	userID, err := h.authorizer.UserIDFromToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, userID)
	h.hub.Register(client)
	h.log.Infof("delivery channel opened user=%s client=%s", userID, client.ID)

	// The request context dies with the handler; the pumps outlive it.
	go client.WriteLoop(context.Background())
	go func() {
		client.ReadLoop()
		h.hub.Unregister(client)
		h.log.Infof("delivery channel closed user=%s client=%s", userID, client.ID)
	}()
}

func bearerFromHeader(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
