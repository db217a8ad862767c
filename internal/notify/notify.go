// Package notify carries user-facing notices about applied room changes to
// whatever surfaces them (logs, connected UI clients).
package notify

import (
	"log/slog"
	"sync"
)

// Action is an optional follow-up the UI may offer next to a notice.
type Action struct {
	Label    string
	OnInvoke func()
}

type Notification struct {
	RoomID  string
	Message string
	Detail  any
	Action  *Action
}

// Emitter is fire-and-forget; implementations must not block the caller on I/O.
type Emitter interface {
	Notify(n Notification)
}

type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(Notification) {}

// Fanout delivers each notification to every emitter in order.
type Fanout []Emitter

func (f Fanout) Notify(n Notification) {
	for _, e := range f {
		if e != nil {
			e.Notify(n)
		}
	}
}

type LogEmitter struct {
	log *slog.Logger
}

func NewLogEmitter(l *slog.Logger) *LogEmitter {
	if l == nil {
		l = slog.Default()
	}
	return &LogEmitter{log: l.With(slog.String("component", "notify"))}
}

func (e *LogEmitter) Notify(n Notification) {
	attrs := []any{slog.String("room", n.RoomID)}
	if n.Action != nil {
		attrs = append(attrs, slog.String("action", n.Action.Label))
	}
	e.log.Info(n.Message, attrs...)
}

// Recorder keeps every notification it receives; handy for wiring checks.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, len(r.seen))
	copy(out, r.seen)
	return out
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.seen))
	for i, n := range r.seen {
		out[i] = n.Message
	}
	return out
}
