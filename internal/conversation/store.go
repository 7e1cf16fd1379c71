package conversation

import (
	"sync"
)

const defaultMaxTurns = 64

// Store is an in-memory map from conversation key to turn history.
// Entries live for the process lifetime only; there is no persistence.
type Store struct {
	mu       sync.Mutex
	turns    map[Key][]Turn
	locks    map[Key]*sync.Mutex
	maxTurns int
}

func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Store{
		turns:    make(map[Key][]Turn),
		locks:    make(map[Key]*sync.Mutex),
		maxTurns: maxTurns,
	}
}

// Get returns a copy of the stored history for key, oldest first.
func (s *Store) Get(key Key) []Turn {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.turns[key]
	if !ok {
		return nil
	}
	return append([]Turn(nil), items...)
}

// Append adds turns to the history for key, trimming the oldest entries
// once the per-conversation cap is exceeded.
func (s *Store) Append(key Key, turns ...Turn) {
	if s == nil || len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := append(s.turns[key], turns...)
	if len(cur) > s.maxTurns {
		cur = append([]Turn(nil), cur[len(cur)-s.maxTurns:]...)
	}
	s.turns[key] = cur
}

// Clear removes the conversation for key.
func (s *Store) Clear(key Key) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, key)
}

// ClearUser removes every conversation belonging to userID, across
// direct messages and all threads.
func (s *Store) ClearUser(userID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.turns {
		if key.UserID == userID {
			delete(s.turns, key)
		}
	}
}

// Lock serializes exchanges for one conversation key. Concurrent events
// for different keys proceed in parallel; the same key runs one
// read-modify-write cycle at a time.
func (s *Store) Lock(key Key) {
	if s == nil {
		return
	}
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()
	lock.Lock()
}

func (s *Store) Unlock(key Key) {
	if s == nil {
		return
	}
	s.mu.Lock()
	lock, ok := s.locks[key]
	s.mu.Unlock()
	if ok {
		lock.Unlock()
	}
}
