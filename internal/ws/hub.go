package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/comanda-pos/api/internal/enum"
	"go.uber.org/zap"
)

// Event is one message pushed to kitchen displays.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var errHubStopped = errors.New("ws: hub stopped")

// Broadcaster delivers an event to the displays of a station. Station
// enum.StationAll reaches every display.
type Broadcaster interface {
	Broadcast(ctx context.Context, station string, ev Event) error
}

type stationEvent struct {
	station string
	event   Event
}

// Hub keeps one room per station. Displays subscribed to the "all" room
// see every event; events for "all" reach every room.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan stationEvent
	done       chan struct{}

	mu  sync.RWMutex
	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan stationEvent, 256),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.station] == nil {
				h.rooms[client.station] = make(map[*Client]bool)
			}
			h.rooms[client.station][client] = true
			h.mu.Unlock()
			h.log.Debug("display connected", zap.String("station", client.station))

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case se := <-h.broadcast:
			message, err := json.Marshal(se.event)
			if err != nil {
				h.log.Warn("marshal event", zap.String("type", se.event.Type), zap.Error(err))
				continue
			}
			h.mu.Lock()
			for _, client := range h.targets(se.station) {
				select {
				case client.send <- message:
				default:
					h.log.Warn("display too slow, dropping", zap.String("station", client.station))
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// targets must be called with mu held.
func (h *Hub) targets(station string) []*Client {
	var out []*Client
	for room, clients := range h.rooms {
		if station != enum.StationAll && room != station && room != enum.StationAll {
			continue
		}
		for c := range clients {
			out = append(out, c)
		}
	}
	return out
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) {
	clients, ok := h.rooms[client.station]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.station)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for c := range clients {
			h.drop(c)
		}
	}
}

// Broadcast queues ev for the hub loop. It only blocks when the queue is
// full, and then no longer than ctx allows.
func (h *Hub) Broadcast(ctx context.Context, station string, ev Event) error {
	select {
	case <-h.done:
		return errHubStopped
	default:
	}
	select {
	case h.broadcast <- stationEvent{station: station, event: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errHubStopped
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients reports how many displays are connected to station's room.
func (h *Hub) Clients(station string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[station])
}
