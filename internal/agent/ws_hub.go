package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"fieldscan/internal/api"
	"fieldscan/internal/logging"
	"fieldscan/internal/network"
)

const wsWriteTimeout = 5 * time.Second

// hub fans orchestrator events out to websocket clients.
type hub struct {
	logger   *slog.Logger
	snapshot func() api.Event
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func newHub(logger *slog.Logger) *hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		logger:  logging.NewComponentLogger(logger, "ws"),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// run forwards events until ctx is done or the channel closes.
func (h *hub) run(ctx context.Context, events <-chan network.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(api.FromEvent(event, h.now()))
		}
	}
}

func (h *hub) broadcast(event api.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to encode event", logging.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		ctx, cancel := context.WithTimeout(h.ctx, wsWriteTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("dropping websocket client", logging.Error(err))
			h.remove(conn)
		}
	}
}

func (h *hub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", logging.Int("clients", count))

	if h.snapshot != nil {
		if data, err := json.Marshal(h.snapshot()); err == nil {
			ctx, cancel := context.WithTimeout(h.ctx, wsWriteTimeout)
			_ = conn.Write(ctx, websocket.MessageText, data)
			cancel()
		}
	}

	go h.readLoop(conn)
}

// readLoop discards client messages and notices disconnects.
func (h *hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	for conn := range clients {
		_ = conn.Close(websocket.StatusGoingAway, "agent shutting down")
	}
	h.cancel()
}
