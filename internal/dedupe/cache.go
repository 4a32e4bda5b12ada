// Package dedupe remembers recently appended analysis record ids so
// redelivered Kafka messages are not written twice.
package dedupe

import (
	"sync"
	"time"
)

type stamp struct {
	id string
	at time.Time
}

// SeenSet is a capacity and ttl bounded set of record ids.
type SeenSet struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []stamp
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewSeenSet creates a set holding at most capacity ids for ttl each.
func NewSeenSet(capacity int, ttl time.Duration) *SeenSet {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SeenSet{
		items:    make(map[string]time.Time, capacity),
		order:    make([]stamp, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Contains reports whether id was added within the ttl window.
func (s *SeenSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.items[id]
	return ok && s.now().Sub(at) <= s.ttl
}

// Add records id, evicting expired ids and the oldest ones beyond capacity.
func (s *SeenSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.items[id] = now
	s.order = append(s.order, stamp{id: id, at: now})
	s.evict(now)
}

// Len is the number of ids currently held.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *SeenSet) evict(now time.Time) {
	cutoff := now.Add(-s.ttl)

	for len(s.order) > 0 && (len(s.items) > s.capacity || s.order[0].at.Before(cutoff)) {
		oldest := s.order[0]
		s.order = s.order[1:]

		// A re-added id has a newer stamp further back in order.
		if at, ok := s.items[oldest.id]; ok && at.Equal(oldest.at) {
			delete(s.items, oldest.id)
		}
	}
}
