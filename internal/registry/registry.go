package registry

import (
	"sort"

	"chatify/internal/metrics"
	"chatify/internal/models"

	"github.com/c-pro/geche"
)

// Handle is a live connection endpoint. Implementations must be comparable
// (pointer types) because Unregister matches handles by identity.
type Handle interface {
	// Send queues msg for delivery. It returns false if the connection
	// can no longer accept messages.
	Send(msg models.ServerMessage) bool
}

// Registry maps a user id to the single live connection of that user.
// It is safe for concurrent use.
type Registry struct {
	conns *geche.Locker[string, Handle]
}

func New() *Registry {
	return &Registry{
		conns: geche.NewLocker[string, Handle](geche.NewMapCache[string, Handle]()),
	}
}

// Register installs h for userID, superseding any previous handle.
func (r *Registry) Register(userID string, h Handle) {
	tx := r.conns.Lock()
	defer tx.Unlock()
	tx.Set(userID, h)
	metrics.ConnectionsOnline.Set(float64(tx.Len()))
}

// Unregister removes the mapping for userID only if it still points to h.
// A stale disconnect therefore never drops a newer connection.
// It reports whether the mapping was removed.
func (r *Registry) Unregister(userID string, h Handle) bool {
	tx := r.conns.Lock()
	defer tx.Unlock()
	current, err := tx.Get(userID)
	if err != nil || current != h {
		return false
	}
	_ = tx.Del(userID)
	metrics.ConnectionsOnline.Set(float64(tx.Len()))
	return true
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	tx := r.conns.RLock()
	defer tx.Unlock()
	h, err := tx.Get(userID)
	if err != nil {
		return nil, false
	}
	return h, true
}

// Online returns the ids of all connected users, sorted.
func (r *Registry) Online() []string {
	tx := r.conns.RLock()
	snapshot := tx.Snapshot()
	tx.Unlock()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	tx := r.conns.RLock()
	defer tx.Unlock()
	return tx.Len()
}
