package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSMessage represents a message from an observer
type WSMessage struct {
	Action string `json:"action"` // next | retry | clear_error | reset | meeting
	A      string `json:"a,omitempty"`
	B      string `json:"b,omitempty"`
}

// Envelope is what the hub pushes to observers.
type Envelope struct {
	Type string `json:"type"` // state | toast
	Data any    `json:"data"`
}

// Client represents one observer's websocket connection
type Client struct {
	conn    *websocket.Conn
	id      string
	writeMu sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

func (c *Client) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// WebSocket hub for broadcasting updates to all connected observers
type Hub struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup

	// welcome renders the message a new client receives first.
	welcome func() []byte
}

func newHub(welcome func() []byte) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
		welcome:    welcome,
	}
}

// start runs the hub goroutine.
func (h *Hub) start() {
	h.wg.Add(1)
	go h.run()
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			n := len(h.clients)
			h.mu.Unlock()
			logger.Infof("WebSocket client connected (%s). Total: %d", client.id, n)
			if h.welcome != nil {
				if msg := h.welcome(); msg != nil {
					LogWSMessage("OUT", client.id, string(msg))
					if err := client.write(msg); err != nil {
						logger.Warnf("WebSocket write error to %s: %v", client.id, err)
					}
				}
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				DebugLog("hub.unregister", "client %s disconnected", client.id)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logger.Infof("WebSocket client disconnected. Total: %d", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn, client := range h.clients {
				LogWSMessage("OUT", client.id, string(message))
				if err := client.write(message); err != nil {
					logger.Warnf("WebSocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// broadcastJSON pushes an envelope to every client. It is a no-op once the hub has stopped.
func (h *Hub) broadcastJSON(typ string, data any) {
	msg, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		logError("hub.broadcastJSON", err)
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// sendJSON pushes an envelope to a single client.
func (h *Hub) sendJSON(client *Client, typ string, data any) {
	msg, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		logError("hub.sendJSON", err)
		return
	}
	LogWSMessage("OUT", client.id, string(msg))
	if err := client.write(msg); err != nil {
		logger.Warnf("WebSocket write error to %s: %v", client.id, err)
	}
}

func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{conn: conn, id: uuid.NewString()}
	DebugLog("handleWebSocket", "client %s upgraded from %s", client.id, r.RemoteAddr)
	select {
	case srv.hub.register <- client:
	case <-srv.hub.done:
		conn.Close()
		return
	}

	// Handle messages and disconnection
	go func() {
		defer func() {
			select {
			case srv.hub.unregister <- conn:
			case <-srv.hub.done:
				conn.Close()
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			LogWSMessage("IN", client.id, string(message))
			srv.handleWSMessage(client, message)
		}
	}()
}
