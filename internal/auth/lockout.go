package auth

import (
	"sync"
	"time"
)

// lockoutTracker counts consecutive failed attempts per identifier and locks
// the identifier out once the threshold is reached. Tracked for every
// identifier string, known or not, so the lockout response itself cannot be
// used to enumerate accounts.
type lockoutTracker struct {
	mu        sync.Mutex
	threshold int
	duration  time.Duration
	now       func() time.Time
	entries   map[string]*lockoutEntry
}

type lockoutEntry struct {
	failures    int
	lockedUntil time.Time
	lastFailure time.Time
}

func newLockoutTracker(threshold int, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
		entries:   make(map[string]*lockoutEntry),
	}
}

// locked reports whether identifier is currently locked out.
func (t *lockoutTracker) locked(identifier string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[identifier]
	if !ok {
		return false
	}
	if !e.lockedUntil.IsZero() && t.now().Before(e.lockedUntil) {
		return true
	}
	return false
}

// fail registers a failed attempt and reports whether it tripped the lock.
func (t *lockoutTracker) fail(identifier string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sweep(now)
	e, ok := t.entries[identifier]
	if !ok {
		e = &lockoutEntry{}
		t.entries[identifier] = e
	}
	e.failures++
	e.lastFailure = now
	if e.failures >= t.threshold {
		e.lockedUntil = now.Add(t.duration)
		e.failures = 0
		return true
	}
	return false
}

// reset clears the failure history after a successful authentication.
func (t *lockoutTracker) reset(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, identifier)
}

// sweep drops stale entries to bound memory. Called under the lock.
func (t *lockoutTracker) sweep(now time.Time) {
	cutoff := now.Add(-2 * t.duration)
	for id, e := range t.entries {
		if e.lastFailure.Before(cutoff) && (e.lockedUntil.IsZero() || now.After(e.lockedUntil)) {
			delete(t.entries, id)
		}
	}
}
