package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camden-git/fleetinspectbackend/logger"
)

const (
	EventPhotoStatus     = "photo.status"
	EventAnomalyCritical = "anomaly.critical"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
)

// Event is one pipeline notification pushed to websocket subscribers.
type Event struct {
	Type      string                 `json:"type"`
	PhotoID   string                 `json:"photo_id,omitempty"`
	AssetID   string                 `json:"asset_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// subscriber receives every event, or only one asset's events when assetID is set.
type subscriber struct {
	conn    *websocket.Conn
	assetID string
	send    chan []byte
}

func (s *subscriber) wants(assetID string) bool {
	return s.assetID == "" || s.assetID == assetID
}

type outbound struct {
	assetID string
	payload []byte
}

// Hub fans pipeline events out to connected inspectors and dashboards.
type Hub struct {
	log         *logger.Logger
	subscribers map[*subscriber]struct{}
	register    chan *subscriber
	unregister  chan *subscriber
	events      chan outbound
	done        chan struct{}
	mu          sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:         log.With("service", "RealtimeHub"),
		subscribers: make(map[*subscriber]struct{}),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		events:      make(chan outbound, 256),
		done:        make(chan struct{}),
	}
}

func (h *Hub) drop(s *subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}

// Run dispatches until ctx is cancelled, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subscribers {
				h.drop(s)
			}
			h.mu.Unlock()
			return
		case s := <-h.register:
			h.mu.Lock()
			h.subscribers[s] = struct{}{}
			h.mu.Unlock()
		case s := <-h.unregister:
			h.mu.Lock()
			h.drop(s)
			h.mu.Unlock()
		case ev := <-h.events:
			h.mu.Lock()
			for s := range h.subscribers {
				if !s.wants(ev.assetID) {
					continue
				}
				select {
				case s.send <- ev.payload:
				default:
					h.log.Warn("Disconnecting slow subscriber", "asset_filter", s.assetID)
					h.drop(s)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast queues an event without blocking the pipeline; it is dropped
// when the dispatch buffer is full.
func (h *Hub) Broadcast(event Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}
	select {
	case h.events <- outbound{assetID: event.AssetID, payload: encoded}:
	default:
		h.log.Warn("Dropping event, dispatch buffer full", "type", event.Type, "photo_id", event.PhotoID)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and subscribes it. An asset_id query
// parameter limits the stream to that asset.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s := &subscriber{
		conn:    conn,
		assetID: strings.TrimSpace(r.URL.Query().Get("asset_id")),
		send:    make(chan []byte, sendBufferSize),
	}
	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer conn.Close()
		for msg := range s.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
	}()

	// inbound frames are ignored; reading surfaces the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}
