// Package presence is the group-addressed real-time channel. Each WebSocket
// connection joins the group of its authenticated user; publishers address a
// user and never learn how many connections received the event.
package presence

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"jobhub/internal/logger"
)

const groupPrefix = "user:"

// GroupName is the presence group of a user.
func GroupName(userID string) string {
	return groupPrefix + userID
}

// ParseGroup returns the user of a group name.
func ParseGroup(group string) (string, bool) {
	if !strings.HasPrefix(group, groupPrefix) || len(group) == len(groupPrefix) {
		return "", false
	}
	return strings.TrimPrefix(group, groupPrefix), true
}

// Hub tracks live connections per group.
type Hub struct {
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	groups map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a hub accepting upgrades from allowedOrigins (prefix match).
// Requests without an Origin header are always accepted.
func NewHub(log *zap.SugaredLogger, allowedOrigins []string) *Hub {
	if log == nil {
		log = logger.Logger
	}
	h := &Hub{
		logger:     log.Named("presence"),
		groups:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return h
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			return strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "https://localhost")
		}
		for _, a := range allowed {
			if strings.HasPrefix(origin, a) {
				return true
			}
		}
		return false
	}
}

// Run processes (un)registrations until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Debugw("Presence hub stopping due to context cancellation")
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := GroupName(c.userID)
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]struct{})
	}
	h.groups[group][c] = struct{}{}
	h.logger.Debugw("Client joined group", logger.FieldClientID, c.id, "group", group, "members", len(h.groups[group]))
}

// remove closes c.send under the write lock, so it can never race a Publish
// holding the read lock.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := GroupName(c.userID)
	members, ok := h.groups[group]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	close(c.send)
	if len(members) == 0 {
		delete(h.groups, group)
	}
	h.logger.Debugw("Client left group", logger.FieldClientID, c.id, "group", group)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for group, members := range h.groups {
		for c := range members {
			close(c.send)
		}
		delete(h.groups, group)
	}
}

// Publish hands payload to every connection of userID. It never blocks: a
// connection whose buffer is full misses the event. Zero subscribers is not
// an error.
func (h *Hub) Publish(ctx context.Context, userID string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.groups[GroupName(userID)]
	sent, skipped := 0, 0
	for c := range members {
		select {
		case c.send <- payload:
			sent++
		default:
			skipped++
		}
	}
	if skipped > 0 {
		h.logger.Warnw("Presence buffers full, event skipped",
			logger.FieldRecipientID, userID, "sent", sent, "skipped", skipped)
	}
	return nil
}

// Subscribers reports how many connections userID currently has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[GroupName(userID)])
}
