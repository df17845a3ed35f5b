package sso

import (
	"sync"
	"time"
)

// pendingFlow holds the secrets minted when an authorization redirect was
// issued. Keyed by state; single-use; discarded after the TTL so an
// abandoned login cannot be replayed later.
type pendingFlow struct {
	nonce     string
	verifier  string
	createdAt time.Time
}

type flowStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	flows map[string]pendingFlow
}

func newFlowStore(ttl time.Duration) *flowStore {
	return &flowStore{
		ttl:   ttl,
		now:   time.Now,
		flows: make(map[string]pendingFlow),
	}
}

// put registers a pending flow under its state value.
func (s *flowStore) put(state, nonce, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.flows[state] = pendingFlow{nonce: nonce, verifier: verifier, createdAt: s.now()}
}

// take consumes the flow for state. The entry is erased whether or not it
// exists or has expired; a state can never be presented twice.
func (s *flowStore) take(state string) (pendingFlow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[state]
	delete(s.flows, state)
	if !ok || s.now().Sub(f.createdAt) > s.ttl {
		return pendingFlow{}, false
	}
	return f, true
}

// sweep drops expired flows. Called under the lock.
func (s *flowStore) sweep() {
	cutoff := s.now().Add(-s.ttl)
	for state, f := range s.flows {
		if f.createdAt.Before(cutoff) {
			delete(s.flows, state)
		}
	}
}
