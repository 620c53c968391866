package services

import "sync"

// Arena hands out the locks that serialize mutations per session and per
// user. Votes hold the session read lock plus their user's lock, so votes by
// different users run in parallel while a reset, countdown change or spin
// (session write lock) excludes them all.
type Arena struct {
	mu       sync.Mutex
	sessions map[int64]*sessionLocks
}

type sessionLocks struct {
	mu      sync.RWMutex
	usersMu sync.Mutex
	users   map[int64]*sync.Mutex
}

// NewArena creates an empty Arena
func NewArena() *Arena {
	return &Arena{sessions: make(map[int64]*sessionLocks)}
}

func (a *Arena) entry(sessionID int64) *sessionLocks {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.sessions[sessionID]
	if !ok {
		e = &sessionLocks{users: make(map[int64]*sync.Mutex)}
		a.sessions[sessionID] = e
	}
	return e
}

// LockSession takes the session write lock. Call the returned func to release.
func (a *Arena) LockSession(sessionID int64) func() {
	e := a.entry(sessionID)
	e.mu.Lock()
	return e.mu.Unlock
}

// RLockSession takes the session read lock
func (a *Arena) RLockSession(sessionID int64) func() {
	e := a.entry(sessionID)
	e.mu.RLock()
	return e.mu.RUnlock
}

// LockUser takes the session read lock and then the user's own lock
func (a *Arena) LockUser(sessionID, userID int64) func() {
	e := a.entry(sessionID)
	e.mu.RLock()

	e.usersMu.Lock()
	m, ok := e.users[userID]
	if !ok {
		m = &sync.Mutex{}
		e.users[userID] = m
	}
	e.usersMu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		e.mu.RUnlock()
	}
}

// ForgetUser drops a removed user's lock
func (a *Arena) ForgetUser(sessionID, userID int64) {
	e := a.entry(sessionID)
	e.usersMu.Lock()
	delete(e.users, userID)
	e.usersMu.Unlock()
}

// Forget drops the locks of an ended session
func (a *Arena) Forget(sessionID int64) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

// Len returns the number of tracked sessions
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
