// hub.go - websocket fan-out of feed messages.

package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HelloFunc produces the greeting for a new subscriber. May be nil.
type HelloFunc func() (*Message, error)

// Hub tracks subscribers and broadcasts to all of them. Slow subscribers whose
// buffer fills are dropped.
type Hub struct {
	id         string
	log        zerolog.Logger
	hello      HelloFunc
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	count      atomic.Int64

	// mu orders wg.Add in ServeHTTP against Close.
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub identified as id in message envelopes. Call Run to start it.
func NewHub(id string, log zerolog.Logger, hello HelloFunc) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		id:         id,
		log:        log.With().Str("component", "feed").Logger(),
		hello:      hello,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		clients:    make(map[*client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run serves registrations and broadcasts until ctx is done or Close is called.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn().Msg("dropping slow subscriber")
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

func (h *Hub) shutdown() {
	h.cancel()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.count.Store(0)
}

// Close stops the hub and waits for connection goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}

// Subscribers is the current number of connected clients.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Publish wraps payload and queues it for every subscriber.
func (h *Hub) Publish(typ string, payload any) error {
	msg, err := NewMessage(typ, h.id, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- raw:
	case <-h.ctx.Done():
	}
	return nil
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	if h.hello != nil {
		if msg, err := h.hello(); err != nil {
			h.log.Warn().Err(err).Msg("building hello")
		} else if raw, err := json.Marshal(msg); err == nil {
			c.send <- raw
		}
	}

	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.wg.Add(2)
	h.mu.Unlock()

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		h.wg.Done()
		h.wg.Done()
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards inbound frames and keeps the read deadline fresh.
func (c *client) readPump() {
	defer c.hub.wg.Done()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Msg("subscriber closed")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
