package conversation

import (
	"sync"
)

// userLocks serializes the get-or-create-session through touch-session
// sequence per user. Without it, two concurrent messages from the same
// sender can both decide to create a session, splitting one perceived
// conversation across two checkpoint timelines.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock acquires the mutex for the given user, creating it on demand.
func (l *userLocks) lock(userID string) {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// unlock releases the user's mutex and frees the entry once no other
// goroutine is waiting on it.
func (l *userLocks) unlock(userID string) {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		l.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
