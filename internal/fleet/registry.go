// Package fleet owns the Session Fleet Supervisor: per-account browser
// process lifecycle, crash handling, restart-with-credential-replay,
// and TradingContext recovery.
package fleet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/copytrade/fleet/internal/domain"
)

// Registry is the single owner of every Session's identity and
// current phase/health snapshot. Readers get a copy; mutation flows
// only through Update: one lock guards registration/deregistration
// while per-entity fields are updated by their owning worker.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	ordered  []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*domain.Session)}
}

// Register adds a new Session under its AccountID. Registering an
// AccountID that already exists replaces the prior entry in place
// (same FIFO position).
func (r *Registry) Register(s *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.AccountID]; !exists {
		r.ordered = append(r.ordered, s.AccountID)
	}
	r.sessions[s.AccountID] = s
}

// Get returns a copy of the Session for accountID.
func (r *Registry) Get(accountID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[accountID]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// Update applies fn to the live Session for accountID under the
// registry lock, the single path by which Session fields change.
func (r *Registry) Update(accountID string, fn func(*domain.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[accountID]
	if !ok {
		return fmt.Errorf("fleet: no session registered for %s", accountID)
	}
	fn(s)
	return nil
}

// All returns a snapshot copy of every registered Session, in
// registration order.
func (r *Registry) All() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Session, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, *r.sessions[id])
	}
	return out
}

// Eligible returns the AccountIDs currently READY and HEALTHY, sorted
// for deterministic fan-out ordering.
func (r *Registry) Eligible() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, s := range r.sessions {
		if domain.Eligible(s.Phase, s.Health) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Remove deregisters a Session entirely (operator shutdown).
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, accountID)
	for i, id := range r.ordered {
		if id == accountID {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
}

// Count reports how many Sessions are registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
