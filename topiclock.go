package topicbus

import "sync"

// topicLockSet hands out one advisory mutex per topic name. Fan-out into a
// subscriber queue spans a read and a write that must appear atomic
// relative to other fan-out calls for the same topic; fan-out for different
// topics proceeds independently.
type topicLockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTopicLockSet() *topicLockSet {
	return &topicLockSet{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for a topic, creating it on first use. Locks are
// never removed; the set grows with the topic population, which is small
// relative to message volume.
func (s *topicLockSet) get(topicName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[topicName]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[topicName] = lock
	}
	return lock
}
