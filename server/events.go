package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

type wsClient struct {
	conn *websocket.Conn
	user PublicUser

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// Hub fans board-change signals and the active-user roster out to every
// connected socket. Payloads carry no board data; clients refetch over HTTP.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// same-origin only; the board is served from this process
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
		clients: map[*wsClient]struct{}{},
	}
}

type wsMessage struct {
	Type  string       `json:"type"`
	Users []PublicUser `json:"users,omitempty"`
}

// HandleWS upgrades the request and tracks the connection until it closes.
// Identity is resolved once at upgrade time from the session.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, user PublicUser) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	c := &wsClient{conn: conn, user: user, send: make(chan []byte, 16)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	c.enqueue(mustMarshal(wsMessage{Type: "connected"}))
	c.enqueue(mustMarshal(wsMessage{Type: "active_users", Users: h.ActiveUsers()}))
	h.broadcastRoster()

	// reads are discarded; the loop exists to notice the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.drop(c)
	}()
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	}
	h.mu.Unlock()
	if ok {
		c.conn.Close()
		h.broadcastRoster()
	}
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue is non-blocking; a client that cannot drain its buffer just misses
// the signal and catches up on its periodic refresh.
func (c *wsClient) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// ActiveUsers returns the connected users deduplicated by id and sorted by
// name, so several tabs of the same person count once.
func (h *Hub) ActiveUsers() []PublicUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := map[string]bool{}
	users := make([]PublicUser, 0, len(h.clients))
	for c := range h.clients {
		if c.user.ID == "" || seen[c.user.ID] {
			continue
		}
		seen[c.user.ID] = true
		users = append(users, c.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

func (h *Hub) broadcastRoster() {
	h.broadcast(mustMarshal(wsMessage{Type: "active_users", Users: h.ActiveUsers()}))
}

// BroadcastBoardUpdated signals every client that the board changed. Wired
// as the store's post-persist hook.
func (h *Hub) BroadcastBoardUpdated() {
	h.broadcast(mustMarshal(wsMessage{Type: "board_updated"}))
}
