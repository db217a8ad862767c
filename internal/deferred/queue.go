// Package deferred buffers events whose target entity is not yet in the
// room snapshot and hands them back once it is.
package deferred

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/event"
)

const DefaultCapacity = 1024

// Eviction reasons passed to Options.OnEvict.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
)

type Entry struct {
	Event      event.Event
	EnqueuedAt time.Time
}

type Options struct {
	// Capacity bounds the queue; the oldest entry is evicted to make room.
	// Zero means DefaultCapacity.
	Capacity int
	// MaxAge evicts entries that waited longer than this. Zero disables it.
	MaxAge time.Duration

	Logger  *slog.Logger
	Now     func() time.Time
	OnEvict func(reason string, e Entry)
}

// Queue is FIFO across all targets, which keeps each target's events in
// arrival order.
type Queue struct {
	mu      sync.Mutex
	entries []Entry

	capacity int
	maxAge   time.Duration
	log      *slog.Logger
	now      func() time.Time
	onEvict  func(reason string, e Entry)
}

func New(opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		capacity: opts.Capacity,
		maxAge:   opts.MaxAge,
		log:      opts.Logger.With(slog.String("component", "deferred")),
		now:      opts.Now,
		onEvict:  opts.OnEvict,
	}
}

func (q *Queue) Enqueue(e event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.expireLocked(now)

	for len(q.entries) >= q.capacity {
		q.evictLocked(EvictCapacity, now)
	}
	q.entries = append(q.entries, Entry{Event: e, EnqueuedAt: now})
}

// DrainReplayable removes and returns, in enqueue order, every event whose
// target exists in snap. The rest stay queued.
func (q *Queue) DrainReplayable(snap *domain.RoomSnapshot) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.expireLocked(q.now())
	if len(q.entries) == 0 {
		return nil
	}

	var ready []event.Event
	kept := q.entries[:0]
	for _, en := range q.entries {
		if snap.Has(en.Event.Target()) {
			ready = append(ready, en.Event)
			continue
		}
		kept = append(kept, en)
	}
	clear(q.entries[len(kept):])
	q.entries = kept
	return ready
}

// Flush discards every queued event and returns how many were dropped.
func (q *Queue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	q.entries = nil
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queued entries, oldest first.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) expireLocked(now time.Time) {
	if q.maxAge <= 0 {
		return
	}
	for len(q.entries) > 0 && now.Sub(q.entries[0].EnqueuedAt) > q.maxAge {
		q.evictLocked(EvictExpired, now)
	}
}

// evictLocked drops the oldest entry.
func (q *Queue) evictLocked(reason string, now time.Time) {
	en := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]

	q.log.Warn("deferred event evicted",
		slog.String("reason", reason),
		slog.String("event", en.Event.Name()),
		slog.String("target", en.Event.Target().String()),
		slog.Duration("waited", now.Sub(en.EnqueuedAt)),
		slog.Int("capacity", q.capacity),
	)
	if q.onEvict != nil {
		q.onEvict(reason, en)
	}
}
