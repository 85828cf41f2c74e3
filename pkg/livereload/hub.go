package livereload

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/entrhq/webpreview/pkg/logging"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// Message types exchanged over the push channel.
const (
	TypeConnected   = "connected"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeRegister    = "register"
	TypeFileChanged = "fileChanged"
	TypeError       = "error"
)

const (
	sendBuffer   = 64
	readLimit    = 64 << 10
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Message is one push channel frame. Timestamp is in Unix milliseconds.
type Message struct {
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
	Message     string `json:"message,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected websocket client. Clients
// that fall behind are dropped rather than blocking the broadcaster.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	register func(projectPath string) error
	metrics  *Metrics
	log      *logging.Logger
	now      func() time.Time
}

// NewHub creates a hub. register is called for every "register" message;
// a nil register ignores them.
func NewHub(register func(projectPath string) error, metrics *Metrics, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Discard("livereload")
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Preview pages are served from arbitrary local origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register: register,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.clients.Inc()
	h.log.Infof("client %s connected from %s (total %d)", c.id, r.RemoteAddr, total)

	go h.writePump(c)
	h.sendTo(c, Message{Type: TypeConnected, Timestamp: h.stamp()})
	go h.readPump(c)
}

// Broadcast sends msg to every client.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = h.stamp()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("encoding %s message: %v", msg.Type, err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
			h.metrics.sent.WithLabelValues(msg.Type).Inc()
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warnf("dropping slow client %s", c.id)
		h.remove(c)
	}
}

// FileChanged broadcasts a fileChanged message for path.
func (h *Hub) FileChanged(path string) {
	h.Broadcast(Message{Type: TypeFileChanged, Path: path})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
		h.metrics.clients.Dec()
	}
}

func (h *Hub) stamp() int64 {
	return h.now().UnixMilli()
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("encoding %s message: %v", msg.Type, err)
		return
	}

	h.mu.RLock()
	_, live := h.clients[c]
	delivered := false
	if live {
		select {
		case c.send <- data:
			delivered = true
			h.metrics.sent.WithLabelValues(msg.Type).Inc()
		default:
		}
	}
	h.mu.RUnlock()

	if live && !delivered {
		h.log.Warnf("dropping slow client %s", c.id)
		h.remove(c)
	}
}

// remove unregisters c and closes its send channel. It is safe to call
// more than once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.clients.Dec()
		h.log.Infof("client %s disconnected (remaining %d)", c.id, total)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("client %s read error: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warnf("client %s sent malformed message: %v", c.id, err)
			continue
		}
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *client, msg Message) {
	switch msg.Type {
	case TypePing:
		h.sendTo(c, Message{Type: TypePong, Timestamp: h.stamp()})
	case TypeRegister:
		if msg.ProjectPath == "" || h.register == nil {
			return
		}
		if err := h.register(msg.ProjectPath); err != nil {
			h.log.Warnf("client %s: registering %s: %v", c.id, msg.ProjectPath, err)
			h.sendTo(c, Message{Type: TypeError, ProjectPath: msg.ProjectPath, Message: err.Error(), Timestamp: h.stamp()})
		}
	default:
		h.log.Warnf("client %s sent unknown message type %q", c.id, msg.Type)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
