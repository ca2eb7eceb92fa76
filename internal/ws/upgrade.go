package ws

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"fundledger/config"
	"fundledger/internal/auth"
	"fundledger/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UpgradeEventsWS streams ledger events. Query: token (required),
// project_id, types (comma separated).
func UpgradeEventsWS(cfg *config.JWTConfig, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, types, badParam := parseFilters(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if badParam != "" {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid `+badParam+`"}`))
			return
		}
		token := c.Query("token")
		if token == "" {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"token required"}`))
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
			return
		}
		client := &Client{
			ActorID:   claims.Subject,
			ProjectID: projectID,
			Types:     types,
			Send:      make(chan []byte, 256),
		}
		hub.Register(client)
		defer client.Close()
		client.offer([]byte(`{"type":"subscribed"}`))
		go writePump(client, conn)
		readPump(conn)
	}
}

func parseFilters(c *gin.Context) (*uint, map[string]bool, string) {
	var projectID *uint
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return nil, nil, "project_id"
		}
		pid := uint(id)
		projectID = &pid
	}
	types := map[string]bool{}
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			known := false
			for _, k := range domain.EventTypes {
				known = known || k == t
			}
			if !known {
				return nil, nil, "types"
			}
			types[t] = true
		}
	}
	return projectID, types, ""
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
