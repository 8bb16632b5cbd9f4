package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 16
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	writeWait  = 10 * time.Second
	readLimit  = 512
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewUpgrader accepts connections from the given origins. An empty list or
// "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// ServeWS upgrades the request and streams balance updates for userID until
// the peer goes away.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, upgrader websocket.Upgrader, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	hub.Register(userID, client)
	go client.writePump(hub, userID)
	client.readPump(hub, userID)
}

// readPump only drains control frames; clients never send data.
func (c *Client) readPump(hub *Hub, userID string) {
	defer func() {
		hub.Unregister(userID, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump(hub *Hub, userID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		hub.Unregister(userID, c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
