package ws

import (
	"context"
	"log/slog"

	"chatify/internal/metrics"
	"chatify/internal/models"
	"chatify/internal/ratelimit"
	"chatify/internal/registry"

	"github.com/tidwall/gjson"
)

type Registrar interface {
	Register(userID string, h registry.Handle)
	Unregister(userID string, h registry.Handle) bool
}

type Broadcaster interface {
	BroadcastOnline()
}

type TypingRelay interface {
	Typing(actorID, receiverID string, stopped bool) error
	GroupTyping(ctx context.Context, actorID, groupID string, memberIDs []string, stopped bool) error
}

type CallRelay interface {
	Forward(actorID string, msg models.ClientMessage) (bool, error)
}

type HubConfig struct {
	Conns   Registrar
	Router  Broadcaster
	Typing  TypingRelay
	Calls   CallRelay
	Limiter ratelimit.Limiter
	Logger  *slog.Logger
}

// Hub ties connections to the registry and dispatches inbound socket events.
type Hub struct {
	conns   Registrar
	router  Broadcaster
	typing  TypingRelay
	calls   CallRelay
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:   cfg.Conns,
		router:  cfg.Router,
		typing:  cfg.Typing,
		calls:   cfg.Calls,
		limiter: cfg.Limiter,
		logger:  logger.With("component", "ws"),
	}
}

// Join installs h as the live connection of userID and announces presence.
func (h *Hub) Join(userID string, conn registry.Handle) {
	h.conns.Register(userID, conn)
	h.logger.Debug("connection registered", "user_id", userID)
	h.router.BroadcastOnline()
}

// Leave removes conn unless a newer connection already replaced it.
func (h *Hub) Leave(userID string, conn registry.Handle) {
	if !h.conns.Unregister(userID, conn) {
		h.logger.Debug("stale connection closed", "user_id", userID)
		return
	}
	h.logger.Debug("connection unregistered", "user_id", userID)
	h.router.BroadcastOnline()
}

// Dispatch handles one inbound event. Rejected and unknown events are
// dropped; the socket stays open.
func (h *Hub) Dispatch(ctx context.Context, userID string, msg models.ClientMessage) {
	if h.limiter != nil && !h.limiter.Allow(userID) {
		metrics.RateLimited.WithLabelValues("socket").Inc()
		h.logger.Debug("socket event rate limited", "user_id", userID, "event", msg.Event)
		return
	}

	var err error
	switch msg.Event {
	case models.EventTyping, models.EventStopTyping:
		receiverID := gjson.GetBytes(msg.Payload, "receiverId").String()
		err = h.typing.Typing(userID, receiverID, msg.Event == models.EventStopTyping)

	case models.EventGroupTyping, models.EventGroupStopTyping:
		groupID := gjson.GetBytes(msg.Payload, "groupId").String()
		var memberIDs []string
		for _, id := range gjson.GetBytes(msg.Payload, "memberIds").Array() {
			memberIDs = append(memberIDs, id.String())
		}
		err = h.typing.GroupTyping(ctx, userID, groupID, memberIDs, msg.Event == models.EventGroupStopTyping)

	case models.EventCallOffer, models.EventCallAnswer, models.EventCallICE, models.EventCallEnd:
		_, err = h.calls.Forward(userID, msg)

	default:
		h.logger.Debug("unknown socket event", "user_id", userID, "event", msg.Event)
		return
	}

	if err != nil {
		h.logger.Debug("socket event rejected", "user_id", userID, "event", msg.Event, "error", err)
	}
}
