package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultHubAddr is where the relay listens unless configured otherwise.
const DefaultHubAddr = "127.0.0.1:7878"

// maxEnvelopeSize bounds one websocket frame. Snapshots carry every record.
const maxEnvelopeSize = 32 << 20

type relay struct {
	from *websocket.Conn
	data []byte
}

// Hub is a websocket relay. Every envelope a client sends is forwarded to
// all other connected clients.
type Hub struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan relay

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// HubConfig holds relay configuration.
type HubConfig struct {
	// Addr to listen on; port 0 picks a free port.
	Addr   string
	Logger *log.Logger
}

// DefaultHubConfig returns the default relay configuration.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		Addr:   DefaultHubAddr,
		Logger: log.Default(),
	}
}

// NewHub creates a relay. Call Start to listen.
func NewHub(config *HubConfig) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Addr == "" {
		config.Addr = DefaultHubAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		addr:      config.Addr,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan relay, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start listens and serves /ws and /health.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/health", h.handleHealth)

	h.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	h.wg.Add(1)
	go h.relayLoop()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Printf("Broadcast hub listening on %s", ln.Addr())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Printf("Hub server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the server down.
func (h *Hub) Stop() error {
	h.logger.Println("Stopping broadcast hub")
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "hub shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("hub shutdown error: %w", err)
		}
	}
	h.wg.Wait()
	return nil
}

// Addr returns the listening address.
func (h *Hub) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// URL returns the websocket URL clients dial.
func (h *Hub) URL() string {
	return "ws://" + h.Addr() + "/ws"
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) relayLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			h.clientsMu.RLock()
			targets := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				if conn != msg.from {
					targets = append(targets, conn)
				}
			}
			h.clientsMu.RUnlock()

			for _, conn := range targets {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, msg.data)
				cancel()
				if err != nil {
					h.logger.Printf("Failed to relay to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Same-origin only; Go clients send no Origin header.
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxEnvelopeSize)

	h.clientsMu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Printf("Window connected (total: %d)", n)

	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Snapshot == nil {
			h.logger.Printf("Warning: dropping malformed envelope (%d bytes)", len(data))
			continue
		}

		select {
		case h.broadcast <- relay{from: conn, data: data}:
		case <-h.ctx.Done():
			return
		default:
			h.logger.Println("Warning: relay channel full, dropping envelope")
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	n := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Window disconnected (total: %d)", n)
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": h.ClientCount(),
	})
}
