package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// DefaultRecentCapacity is the number of operations the dashboard log keeps.
const DefaultRecentCapacity = 100

// RecentLog is a fixed-capacity ring of recent arbitrage operations. The
// oldest entry is evicted once the ring is full. Safe for concurrent use.
type RecentLog struct {
	mu   sync.Mutex
	buf  []domain.RecentEntry
	next int // slot the next entry is written to
	n    int
	now  func() time.Time
}

// NewRecentLog creates a RecentLog. capacity <= 0 uses
// DefaultRecentCapacity.
func NewRecentLog(capacity int) *RecentLog {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentLog{
		buf: make([]domain.RecentEntry, capacity),
		now: time.Now,
	}
}

// Add records e, assigning an ID and timestamp when missing, and returns the
// stored entry.
func (l *RecentLog) Add(e domain.RecentEntry) domain.RecentEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e.At == 0 {
		e.At = l.now().UnixMilli()
	}
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.n < len(l.buf) {
		l.n++
	}
	return e
}

// List returns a copy of the entries, most recent first.
func (l *RecentLog) List() []domain.RecentEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.RecentEntry, 0, l.n)
	for i := 1; i <= l.n; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Len returns the number of stored entries.
func (l *RecentLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Cap returns the ring capacity.
func (l *RecentLog) Cap() int {
	return len(l.buf)
}
