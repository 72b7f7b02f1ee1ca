package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yourusername/minecraft-server-manager/internal/console"
	"github.com/yourusername/minecraft-server-manager/internal/instance"
	ws "github.com/yourusername/minecraft-server-manager/internal/websocket"
)

// ConsoleHandler streams instance console output over WebSocket and relays
// commands typed by viewers back into the process.
type ConsoleHandler struct {
	manager        *instance.Manager
	hub            *ws.Hub
	scrollback     *console.Store
	allowedOrigins []string
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(manager *instance.Manager, hub *ws.Hub, scrollback *console.Store, allowedOrigins []string) *ConsoleHandler {
	return &ConsoleHandler{manager: manager, hub: hub, scrollback: scrollback, allowedOrigins: allowedOrigins}
}

// HandleConsoleWebSocket handles WebSocket connections for console streaming
// WS /ws/console/:id
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	in, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return
	}

	username, _ := c.Get("username")
	name, _ := username.(string)
	userID, _ := c.Get("user_id")
	uid, _ := userID.(int64)

	upgrader := buildUpgrader(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s, instance=%s)", err, c.Request.Header.Get("Origin"), in.UUID())
		return
	}

	client := &ws.Client{
		ID:       uuid.New().String(),
		UserID:   uid,
		Username: name,
		Conn:     conn,
		Room:     ws.ConsoleRoom(in.UUID()),
		Send:     make(chan *ws.Message, 1024),
		Hub:      h.hub,
		OnCommand: func(line string) error {
			return in.SendLine(line)
		},
	}

	h.hub.Register <- client

	client.SendMessage("session_info", map[string]interface{}{
		"instance_id": in.UUID(),
		"name":        in.Name(),
		"status":      string(in.Status()),
	})

	// Catch the new viewer up on recent output before live streaming starts.
	if tail := h.scrollback.Tail(in.UUID(), 200); len(tail) > 0 {
		client.SendMessage("scrollback", map[string]interface{}{"lines": tail})
	}

	go client.WritePump()
	go client.ReadPump()
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return isOriginAllowed(origin, allowedOrigins)
		},
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if normalized == "*" || normalized == "0.0.0.0/0" || normalized == origin {
			return true
		}
	}

	return false
}
