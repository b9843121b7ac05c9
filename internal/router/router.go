package router

import (
	"log/slog"
	"slices"

	"chatify/internal/metrics"
	"chatify/internal/models"
	"chatify/internal/registry"
)

// Lookup resolves a user id to its live connection.
type Lookup interface {
	Lookup(userID string) (registry.Handle, bool)
	Online() []string
}

// Router delivers events to connected users. Delivery is at-most-once:
// offline targets are skipped and nothing is queued or retried.
type Router struct {
	conns      Lookup
	unroutable map[string]struct{}
	logger     *slog.Logger
}

type Option func(*Router)

// WithUnroutable marks user ids that never have a connection, such as the
// assistant account. Events addressed to them are dropped before lookup.
func WithUnroutable(userIDs ...string) Option {
	return func(r *Router) {
		for _, id := range userIDs {
			r.unroutable[id] = struct{}{}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func New(conns Lookup, opts ...Option) *Router {
	r := &Router{
		conns:      conns,
		unroutable: make(map[string]struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// Routable reports whether userID can ever hold a connection.
func (r *Router) Routable(userID string) bool {
	_, ok := r.unroutable[userID]
	return userID != "" && !ok
}

// EmitToUser delivers e to userID if that user is connected.
// It reports whether the event was queued on a connection.
func (r *Router) EmitToUser(userID string, e models.Event) bool {
	return r.deliver(userID, models.NewServerMessage(e))
}

// EmitToUsers delivers e to every id in userIDs except the excluded ones.
// Duplicate ids receive the event once.
func (r *Router) EmitToUsers(userIDs []string, e models.Event, excluding ...string) int {
	msg := models.NewServerMessage(e)
	seen := make(map[string]struct{}, len(userIDs))
	delivered := 0
	for _, id := range userIDs {
		if slices.Contains(excluding, id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if r.deliver(id, msg) {
			delivered++
		}
	}
	return delivered
}

// BroadcastOnline sends the current list of connected users to everyone connected.
func (r *Router) BroadcastOnline() {
	online := r.conns.Online()
	ids := make([]string, 0, len(online))
	for _, id := range online {
		if r.Routable(id) {
			ids = append(ids, id)
		}
	}
	r.EmitToUsers(ids, models.OnlineUsers{UserIDs: ids})
}

func (r *Router) deliver(userID string, msg models.ServerMessage) bool {
	name := string(msg.Event)
	if !r.Routable(userID) {
		metrics.EventsDropped.WithLabelValues(name, "unroutable").Inc()
		return false
	}
	h, ok := r.conns.Lookup(userID)
	if !ok {
		metrics.EventsDropped.WithLabelValues(name, "offline").Inc()
		return false
	}
	if !h.Send(msg) {
		metrics.EventsDropped.WithLabelValues(name, "overflow").Inc()
		r.logger.Warn("event not delivered, connection saturated", "user_id", userID, "event", name)
		return false
	}
	metrics.EventsDelivered.WithLabelValues(name).Inc()
	return true
}
