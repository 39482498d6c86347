package runtime

import (
	"sync"

	"chat-broker/contract"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Registry is the live set of authenticated sessions eligible to receive
// broadcasts. A session appears here exactly while it is authenticated;
// add and remove are idempotent so state transitions can retry safely.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]contract.Recipient
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]contract.Recipient),
	}
}

// Add registers an authenticated session. Re-adding the same session ID
// is a no-op, keeping membership changes atomic with state transitions.
func (r *Registry) Add(recipient contract.Recipient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[recipient.SessionID()]; ok {
		return
	}
	r.sessions[recipient.SessionID()] = recipient
}

// Remove drops a session from the broadcast set. Removing an unknown ID
// is a no-op.
func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
}

// Snapshot returns a point-in-time copy of the membership.
// The dispatcher iterates the copy, so no lock is held across network
// writes and concurrent add/remove never block delivery.
func (r *Registry) Snapshot() []contract.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.sessions)
}

// Len reports the current number of authenticated sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
