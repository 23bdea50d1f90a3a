package syncclient

import (
	"sync"

	"github.com/gosuda/boardsync/internal/domain"
)

// EchoFilter recognizes relayed mutations that are reflections of this
// client's own actions. Every mutation carries the id of the session that
// emitted it; a match on that is exact. Creations of ids this client minted
// are also treated as echoes, which covers replays arriving under a new
// session id after a reconnect.
type EchoFilter struct {
	mu     sync.Mutex
	self   string
	minted map[domain.EntityKey]struct{}
}

// NewEchoFilter returns a filter with no session id and nothing minted.
func NewEchoFilter() *EchoFilter {
	return &EchoFilter{minted: make(map[domain.EntityKey]struct{})}
}

// SetSelf records the session id the server assigned to this client.
func (f *EchoFilter) SetSelf(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.self = sessionID
}

// Remember marks key as created locally.
func (f *EchoFilter) Remember(key domain.EntityKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minted[key] = struct{}{}
}

// Forget drops key, e.g. once the entity is deleted.
func (f *EchoFilter) Forget(key domain.EntityKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.minted, key)
}

// Settle forgets minted ids the authoritative snapshot already holds. Their
// creations can no longer arrive on a live connection, and folding a
// duplicate create is idempotent by id.
func (f *EchoFilter) Settle(s *domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.minted) == 0 || s == nil {
		return
	}
	for _, col := range s.Columns {
		delete(f.minted, domain.NewEntityKey(domain.EntityColumn, col.ID))
		for _, card := range col.Cards {
			delete(f.minted, domain.NewEntityKey(domain.EntityCard, card.ID))
		}
	}
}

// Pending returns how many minted ids are still awaiting settlement.
func (f *EchoFilter) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.minted)
}

// IsEcho reports whether m originated from this client.
func (f *EchoFilter) IsEcho(m domain.Mutation, created *domain.EntityKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.self != "" && m.Origin == f.self {
		return true
	}
	if created != nil {
		_, mine := f.minted[*created]
		return mine
	}
	return false
}
