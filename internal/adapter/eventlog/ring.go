package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

const DefaultCapacity = 500

// Ring is a bounded in-memory event log. Once full, each new event evicts
// the oldest one.
type Ring struct {
	mu     sync.Mutex
	buf    []domain.Event
	start  int
	size   int
	nextID int64
	now    func() time.Time
}

var _ port.EventNotifier = (*Ring)(nil)

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		buf:    make([]domain.Event, capacity),
		nextID: 1,
		now:    time.Now,
	}
}

func (r *Ring) Record(_ context.Context, eventType domain.EventType, details map[string]any) (domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := domain.Event{
		ID:      r.nextID,
		Type:    eventType,
		At:      r.now().UTC(),
		Details: details,
	}
	r.nextID++

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = ev
		r.size++
	} else {
		r.buf[r.start] = ev
		r.start = (r.start + 1) % len(r.buf)
	}

	return ev, nil
}

func (r *Ring) List(_ context.Context, limit int) ([]domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}

	events := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.size - 1 - i) % len(r.buf)
		events = append(events, r.buf[idx])
	}
	return events, nil
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
