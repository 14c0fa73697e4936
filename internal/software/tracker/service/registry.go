package service

import (
	"sync"

	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/software/tracker/session"
)

// sessionRegistry maps pet id to its current tracking session. A stopped session stays
// registered so its last state can still be read, until the next start replaces it.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session.Session)}
}

func (r *sessionRegistry) get(petID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[petID]
	return s, ok
}

// acquire returns the pet's session, creating one when there is none or the current one
// has stopped. created reports whether the caller must start it.
func (r *sessionRegistry) acquire(petID string, create func() *session.Session) (s *session.Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[petID]; ok && cur.Lifecycle() != tracking.LifecycleStopped {
		return cur, false
	}
	s = create()
	r.sessions[petID] = s
	return s, true
}

// remove unregisters and stops the pet's session.
func (r *sessionRegistry) remove(petID string) {
	r.mu.Lock()
	s, ok := r.sessions[petID]
	delete(r.sessions, petID)
	r.mu.Unlock()

	if ok {
		s.Stop()
	}
}

func (r *sessionRegistry) stopAll() int {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	running := 0
	for _, s := range all {
		if s.Lifecycle() == tracking.LifecycleRunning {
			running++
		}
		s.Stop()
	}
	return running
}
