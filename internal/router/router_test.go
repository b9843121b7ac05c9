package router

import (
	"encoding/json"
	"sync"
	"testing"

	"chatify/internal/models"
	"chatify/internal/registry"
)

type recordingHandle struct {
	mu     sync.Mutex
	full   bool
	frames []models.ServerMessage
}

func (h *recordingHandle) Send(msg models.ServerMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return false
	}
	h.frames = append(h.frames, msg)
	return true
}

func (h *recordingHandle) received() []models.ServerMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.ServerMessage(nil), h.frames...)
}

func setup(t *testing.T, online ...string) (*Router, map[string]*recordingHandle) {
	t.Helper()
	reg := registry.New()
	handles := make(map[string]*recordingHandle)
	for _, id := range online {
		h := &recordingHandle{}
		handles[id] = h
		reg.Register(id, h)
	}
	return New(reg, WithUnroutable("bot")), handles
}

func TestEmitToUser(t *testing.T) {
	r, handles := setup(t, "u2")

	if !r.EmitToUser("u2", models.MessageDeleted{ID: "m1"}) {
		t.Fatal("expected delivery to connected user")
	}
	if r.EmitToUser("u3", models.MessageDeleted{ID: "m1"}) {
		t.Error("expected offline user to be skipped")
	}

	got := handles["u2"].received()
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if got[0].Event != models.EventMessageDeleted {
		t.Errorf("expected %s, got %s", models.EventMessageDeleted, got[0].Event)
	}
}

func TestEmitToUsers_Excluding(t *testing.T) {
	r, handles := setup(t, "u1", "u2", "u3")

	n := r.EmitToUsers([]string{"u1", "u2", "u3", "u4", "u2"}, models.GroupMessageDeleted{ID: "m", GroupID: "g"}, "u1")
	if n != 2 {
		t.Errorf("expected 2 deliveries, got %d", n)
	}
	if len(handles["u1"].received()) != 0 {
		t.Error("excluded user received the event")
	}
	if len(handles["u2"].received()) != 1 {
		t.Errorf("expected u2 to receive exactly once, got %d", len(handles["u2"].received()))
	}
	if len(handles["u3"].received()) != 1 {
		t.Error("u3 did not receive the event")
	}
}

func TestEmit_FIFOPerConnection(t *testing.T) {
	r, handles := setup(t, "u2")
	for _, id := range []string{"a", "b", "c", "d"} {
		r.EmitToUser("u2", models.MessageDeleted{ID: id})
	}

	got := handles["u2"].received()
	if len(got) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(got))
	}
	for i, id := range []string{"a", "b", "c", "d"} {
		if got[i].Payload.(models.MessageDeleted).ID != id {
			t.Errorf("frame %d: expected %s, got %v", i, id, got[i].Payload)
		}
	}
}

func TestEmit_Unroutable(t *testing.T) {
	reg := registry.New()
	h := &recordingHandle{}
	reg.Register("bot", h)
	r := New(reg, WithUnroutable("bot"))

	if r.EmitToUser("bot", models.NewMessage{}) {
		t.Error("expected unroutable user to be dropped")
	}
	if len(h.received()) != 0 {
		t.Error("unroutable handle received an event")
	}
	if r.Routable("bot") || r.Routable("") || !r.Routable("u1") {
		t.Error("unexpected Routable result")
	}
}

func TestEmit_SaturatedConnection(t *testing.T) {
	r, handles := setup(t, "u2")
	handles["u2"].full = true

	if r.EmitToUser("u2", models.MessageDeleted{ID: "m"}) {
		t.Error("expected saturated connection to report failure")
	}
}

func TestBroadcastOnline(t *testing.T) {
	r, handles := setup(t, "u1", "u2")

	r.BroadcastOnline()

	for _, id := range []string{"u1", "u2"} {
		got := handles[id].received()
		if len(got) != 1 {
			t.Fatalf("%s: expected 1 frame, got %d", id, len(got))
		}
		data, err := json.Marshal(got[0])
		if err != nil {
			t.Fatal(err)
		}
		want := `{"event":"getOnlineUsers","payload":["u1","u2"]}`
		if string(data) != want {
			t.Errorf("%s: expected %s, got %s", id, want, data)
		}
	}
}

func TestServerMessageEncoding(t *testing.T) {
	msg := models.NewServerMessage(models.GroupMessageReacted{
		ID:        "m",
		Reactions: models.Reactions{"👍": {"u2"}},
	})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"event":"groupMessageReacted","payload":{"id":"m","reactions":{"👍":["u2"]}}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
