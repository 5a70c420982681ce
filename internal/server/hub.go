package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
)

const (
	pingInterval  = 20 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 3 * time.Second
	broadcastSize = 256
)

type client struct {
	conn *websocket.Conn
	// session limits delivery to one session's events when set.
	session string
}

type message struct {
	session string
	data    []byte
}

// Hub streams session events to websocket clients. Register, unregister
// and broadcast all go through the Run loop.
type Hub struct {
	clients    map[*websocket.Conn]*client
	register   chan *client
	unregister chan *websocket.Conn
	broadcast  chan message
	upgrader   websocket.Upgrader
	connected  atomic.Int32
	dropped    atomic.Int64
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]*client),
		register:   make(chan *client, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan message, broadcastSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run owns the client set until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
			}
			h.clients = map[*websocket.Conn]*client{}
			h.connected.Store(0)
			return

		case c := <-h.register:
			h.clients[c.conn] = c
			h.connected.Store(int32(len(h.clients)))

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			for conn, c := range h.clients {
				if c.session != "" && msg.session != "" && c.session != msg.session {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					h.drop(conn)
				}
			}

		case <-ping.C:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					h.drop(conn)
				}
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	if _, ok := h.clients[conn]; !ok {
		return
	}
	delete(h.clients, conn)
	_ = conn.Close()
	h.connected.Store(int32(len(h.clients)))
}

// Clients returns the number of registered connections.
func (h *Hub) Clients() int { return int(h.connected.Load()) }

// Dropped returns how many events were discarded because the queue was
// full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Handler upgrades the request and registers the connection. The optional
// "session" query parameter filters the stream to one session.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("Websocket upgrade failed", "error", err)
			return
		}
		h.register <- &client{conn: conn, session: r.URL.Query().Get("session")}

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(readTimeout))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// Emit queues the event for every interested client. A full queue drops
// the event instead of blocking the recorder that produced it.
func (h *Hub) Emit(_ context.Context, event observe.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message{session: event.SessionID, data: data}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

var _ observe.Sink = (*Hub)(nil)
