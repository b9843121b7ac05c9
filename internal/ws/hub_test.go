package ws

import (
	"context"
	"sync"
	"testing"

	"chatify/internal/models"
	"chatify/internal/registry"
	"chatify/internal/router"
)

type recordingHandle struct {
	mu   sync.Mutex
	msgs []models.ServerMessage
}

func (h *recordingHandle) Send(msg models.ServerMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return true
}

func (h *recordingHandle) last() (models.ServerMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.msgs) == 0 {
		return models.ServerMessage{}, false
	}
	return h.msgs[len(h.msgs)-1], true
}

type typingCall struct {
	actor, target string
	members       []string
	stopped       bool
}

type fakeTyping struct {
	calls []typingCall
}

func (f *fakeTyping) Typing(actorID, receiverID string, stopped bool) error {
	f.calls = append(f.calls, typingCall{actor: actorID, target: receiverID, stopped: stopped})
	return nil
}

func (f *fakeTyping) GroupTyping(_ context.Context, actorID, groupID string, memberIDs []string, stopped bool) error {
	f.calls = append(f.calls, typingCall{actor: actorID, target: groupID, members: memberIDs, stopped: stopped})
	return nil
}

type fakeCalls struct {
	forwarded []models.EventName
}

func (f *fakeCalls) Forward(_ string, msg models.ClientMessage) (bool, error) {
	f.forwarded = append(f.forwarded, msg.Event)
	return true, nil
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func newTestHub(t *testing.T) (*Hub, *registry.Registry, *fakeTyping, *fakeCalls) {
	t.Helper()
	reg := registry.New()
	typing := &fakeTyping{}
	calls := &fakeCalls{}
	hub := NewHub(HubConfig{
		Conns:  reg,
		Router: router.New(reg, router.WithUnroutable("luna")),
		Typing: typing,
		Calls:  calls,
	})
	return hub, reg, typing, calls
}

func TestHub_Presence(t *testing.T) {
	hub, reg, _, _ := newTestHub(t)

	alice := &recordingHandle{}
	bob := &recordingHandle{}
	hub.Join("alice", alice)
	hub.Join("bob", bob)

	msg, ok := alice.last()
	if !ok {
		t.Fatal("alice received no presence update")
	}
	if msg.Event != models.EventOnlineUsers {
		t.Fatalf("expected %s, got %s", models.EventOnlineUsers, msg.Event)
	}
	online := msg.Payload.(models.OnlineUsers).UserIDs
	if len(online) != 2 || online[0] != "alice" || online[1] != "bob" {
		t.Errorf("unexpected online list %v", online)
	}

	hub.Leave("bob", bob)
	if reg.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", reg.Len())
	}
	msg, _ = alice.last()
	if online := msg.Payload.(models.OnlineUsers).UserIDs; len(online) != 1 || online[0] != "alice" {
		t.Errorf("unexpected online list after leave %v", online)
	}
}

func TestHub_StaleLeaveKeepsNewConnection(t *testing.T) {
	hub, reg, _, _ := newTestHub(t)

	first := &recordingHandle{}
	second := &recordingHandle{}
	hub.Join("alice", first)
	hub.Join("alice", second)
	hub.Leave("alice", first)

	got, ok := reg.Lookup("alice")
	if !ok || got != second {
		t.Fatal("stale leave removed the newer connection")
	}
}

func TestHub_Dispatch(t *testing.T) {
	hub, _, typing, calls := newTestHub(t)
	ctx := context.Background()

	hub.Dispatch(ctx, "alice", models.ClientMessage{Event: models.EventTyping, Payload: []byte(`{"receiverId":"bob"}`)})
	hub.Dispatch(ctx, "alice", models.ClientMessage{Event: models.EventStopTyping, Payload: []byte(`{"receiverId":"bob"}`)})
	hub.Dispatch(ctx, "alice", models.ClientMessage{
		Event:   models.EventGroupTyping,
		Payload: []byte(`{"groupId":"g1","memberIds":["bob","carol"]}`),
	})
	hub.Dispatch(ctx, "alice", models.ClientMessage{Event: models.EventCallOffer, Payload: []byte(`{"receiverId":"bob","sdp":{}}`)})
	hub.Dispatch(ctx, "alice", models.ClientMessage{Event: "joinRoom", Payload: []byte(`{}`)})

	if len(typing.calls) != 3 {
		t.Fatalf("expected 3 typing calls, got %d", len(typing.calls))
	}
	if c := typing.calls[0]; c.target != "bob" || c.stopped {
		t.Errorf("unexpected typing call %+v", c)
	}
	if c := typing.calls[1]; !c.stopped {
		t.Errorf("expected stop typing, got %+v", c)
	}
	if c := typing.calls[2]; c.target != "g1" || len(c.members) != 2 || c.members[1] != "carol" {
		t.Errorf("unexpected group typing call %+v", c)
	}
	if len(calls.forwarded) != 1 || calls.forwarded[0] != models.EventCallOffer {
		t.Errorf("unexpected forwarded calls %v", calls.forwarded)
	}
}

func TestHub_DispatchRateLimited(t *testing.T) {
	hub, _, typing, _ := newTestHub(t)
	hub.limiter = denyAll{}

	hub.Dispatch(context.Background(), "alice", models.ClientMessage{Event: models.EventTyping, Payload: []byte(`{"receiverId":"bob"}`)})
	if len(typing.calls) != 0 {
		t.Errorf("expected rate limited event to be dropped, got %d calls", len(typing.calls))
	}
}
