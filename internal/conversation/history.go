package conversation

import (
	"context"
	"sync"
	"time"
)

// DefaultHistoryCapacity is how many exchanges a session remembers.
const DefaultHistoryCapacity = 5

// Exchange is one question and the assistant's answer.
type Exchange struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// History is a fixed-capacity ring of exchanges; the oldest is evicted first.
type History struct {
	items []Exchange
	start int
	size  int
}

// NewHistory creates a History holding at most capacity exchanges.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{items: make([]Exchange, capacity)}
}

// Push adds e, dropping the oldest exchange when full.
func (h *History) Push(e Exchange) {
	if h.size < len(h.items) {
		h.items[(h.start+h.size)%len(h.items)] = e
		h.size++
		return
	}
	h.items[h.start] = e
	h.start = (h.start + 1) % len(h.items)
}

// Items returns the exchanges oldest first.
func (h *History) Items() []Exchange {
	out := make([]Exchange, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.items[(h.start+i)%len(h.items)])
	}
	return out
}

// Len is the number of stored exchanges.
func (h *History) Len() int { return h.size }

// HistoryStore keeps per-session histories.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]Exchange, error)
	Append(ctx context.Context, sessionID string, e Exchange) error
}

// DefaultMaxSessions bounds how many sessions a MemoryStore keeps.
const DefaultMaxSessions = 10000

type memorySession struct {
	history *History
	touched time.Time
}

type touch struct {
	id string
	at time.Time
}

// MemoryStore is a process-local HistoryStore. Sessions idle longer than ttl
// are dropped, as are the least recently touched ones beyond maxSessions.
type MemoryStore struct {
	mu          sync.Mutex
	capacity    int
	ttl         time.Duration
	maxSessions int
	sessions    map[string]*memorySession
	order       []touch
	now         func() time.Time
}

// NewMemoryStore creates a MemoryStore whose sessions hold capacity exchanges.
func NewMemoryStore(capacity int, ttl time.Duration, maxSessions int) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &MemoryStore{
		capacity:    capacity,
		ttl:         ttl,
		maxSessions: maxSessions,
		sessions:    make(map[string]*memorySession),
		now:         time.Now,
	}
}

// Load returns the session's exchanges oldest first.
func (m *MemoryStore) Load(_ context.Context, sessionID string) ([]Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok || m.now().Sub(sess.touched) > m.ttl {
		return nil, nil
	}
	return sess.history.Items(), nil
}

// Append records an exchange for the session.
func (m *MemoryStore) Append(_ context.Context, sessionID string, e Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sess, ok := m.sessions[sessionID]
	if !ok || now.Sub(sess.touched) > m.ttl {
		sess = &memorySession{history: NewHistory(m.capacity)}
		m.sessions[sessionID] = sess
	}
	sess.history.Push(e)
	sess.touched = now
	m.order = append(m.order, touch{id: sessionID, at: now})
	m.evict(now)
	return nil
}

// Sessions is the number of sessions currently held.
func (m *MemoryStore) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) evict(now time.Time) {
	cutoff := now.Add(-m.ttl)

	for len(m.order) > 0 && (len(m.sessions) > m.maxSessions || m.order[0].at.Before(cutoff)) {
		oldest := m.order[0]
		m.order = m.order[1:]

		// A session touched again has a newer entry further back in order.
		if sess, ok := m.sessions[oldest.id]; ok && sess.touched.Equal(oldest.at) {
			delete(m.sessions, oldest.id)
		}
	}

	if len(m.order) > 2*len(m.sessions)+16 {
		m.compact()
	}
}

// compact drops order entries superseded by a later touch.
func (m *MemoryStore) compact() {
	live := m.order[:0]
	for _, t := range m.order {
		if sess, ok := m.sessions[t.id]; ok && sess.touched.Equal(t.at) {
			live = append(live, t)
		}
	}
	m.order = live
}
