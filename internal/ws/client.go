package ws

import (
	"net/http"
	"regexp"
	"time"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var stationName = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Displays authenticate with the token query parameter.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected kitchen display.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	station string
	send    chan []byte
}

// ReadPump only watches for disconnects; displays never send anything
// the server acts on.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read", zap.String("station", c.station), zap.Error(err))
			}
			return
		}
	}
}

// WritePump writes queued events, batching whatever is already waiting
// into one frame separated by newlines, and pings the display.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message) //nolint:errcheck
			for i, n := 0, len(c.send); i < n; i++ {
				w.Write([]byte{'\n'}) //nolint:errcheck
				w.Write(<-c.send)     //nolint:errcheck
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades GET /ws/kds/{station}?token=JWT and subscribes the
// display to the station's room.
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	station := chi.URLParam(r, "station")
	if !stationName.MatchString(station) {
		http.Error(w, "invalid station", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		station: station,
		send:    make(chan []byte, 256),
	}
	if !hub.join(client) {
		conn.Close()
		return
	}
	hub.log.Info("display subscribed",
		zap.String("station", station),
		zap.String("user_id", claims.UserID.String()),
		zap.String("role", claims.Role))

	go client.WritePump()
	go client.ReadPump()
}
