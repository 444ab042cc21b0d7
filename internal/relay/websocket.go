package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 256
)

// commandMessage is the inbound websocket payload. Plain-text frames holding
// just the command name are accepted as well.
type commandMessage struct {
	Command string `json:"command"`
}

// WebsocketHandler exposes the relay to remote UIs.
//
// Every connection becomes a subscribed endpoint; frames it sends are parsed
// as commands and forwarded to the command channel.
type WebsocketHandler struct {
	relay    *Relay
	commands chan<- Command
	logger   *slog.Logger
	upgrader websocket.Upgrader

	nextID atomic.Uint64

	mu    sync.Mutex
	conns map[string]*wsEndpoint
	done  chan struct{}
	once  sync.Once
}

// NewWebsocketHandler creates a handler publishing to r and sending commands on commands.
func NewWebsocketHandler(r *Relay, commands chan<- Command, logger *slog.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		relay:    r,
		commands: commands,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
		},
		conns: make(map[string]*wsEndpoint),
		done:  make(chan struct{}),
	}
}

// ServeHTTP upgrades the connection and runs it until the peer disconnects.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ep := newWSEndpoint(fmt.Sprintf("ws-%d", h.nextID.Add(1)), conn)

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		ep.Close()
		return
	default:
	}
	h.conns[ep.ID()] = ep
	h.mu.Unlock()

	h.relay.Subscribe(ep)
	h.logger.Info("ws_client_connected",
		"endpoint", ep.ID(),
		"remote", r.RemoteAddr,
		"endpoints", h.relay.Len(),
	)
	go ep.writeLoop()

	defer func() {
		h.relay.Unsubscribe(ep.ID())
		ep.Close()
		h.mu.Lock()
		delete(h.conns, ep.ID())
		h.mu.Unlock()
		h.logger.Info("ws_client_disconnected", "endpoint", ep.ID(), "endpoints", h.relay.Len())
	}()

	h.readLoop(r.Context(), ep)
}

func (h *WebsocketHandler) readLoop(ctx context.Context, ep *wsEndpoint) {
	for {
		_, data, err := ep.conn.ReadMessage()
		if err != nil {
			return
		}

		kind, err := decodeCommand(data)
		if err != nil {
			h.logger.Debug("ws_command_invalid", "endpoint", ep.ID(), "payload", string(data), "error", err)
			continue
		}

		select {
		case h.commands <- Command{Kind: kind, ReplyTo: ep}:
		case <-h.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close disconnects every client. Later connections are refused.
func (h *WebsocketHandler) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		close(h.done)
		conns := make([]*wsEndpoint, 0, len(h.conns))
		for _, ep := range h.conns {
			conns = append(conns, ep)
		}
		h.mu.Unlock()

		for _, ep := range conns {
			ep.Close()
		}
	})
}

func decodeCommand(data []byte) (CommandKind, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var msg commandMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", err
		}
		return ParseCommand(msg.Command)
	}
	return ParseCommand(trimmed)
}

// wsEndpoint is a websocket connection subscribed to the relay.
type wsEndpoint struct {
	id   string
	conn *websocket.Conn
	send chan Event

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func newWSEndpoint(id string, conn *websocket.Conn) *wsEndpoint {
	return &wsEndpoint{
		id:   id,
		conn: conn,
		send: make(chan Event, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (e *wsEndpoint) ID() string { return e.id }

func (e *wsEndpoint) Alive() bool { return !e.closed.Load() }

// Deliver queues ev for the writer goroutine. Never blocks; a full queue drops.
func (e *wsEndpoint) Deliver(ev Event) error {
	if e.closed.Load() {
		return ErrEndpointClosed
	}
	select {
	case e.send <- ev:
		return nil
	default:
		return ErrDropped
	}
}

func (e *wsEndpoint) writeLoop() {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.send:
			e.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := e.conn.WriteJSON(ev); err != nil {
				e.Close()
				return
			}
		}
	}
}

// Close is idempotent.
func (e *wsEndpoint) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		e.conn.Close()
	})
}
