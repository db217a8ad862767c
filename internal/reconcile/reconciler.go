// Package reconcile merges the room event stream into the cached snapshot.
//
// Per target the reconciler decides whether an event is applied (set-if-newer
// against the snapshot store), deferred (target not known yet) or dropped.
// Deferred events are replayed right after the event that made their target
// known, oldest first. Nothing here returns an error to the caller: stale,
// unresolvable and malformed input is absorbed and logged.
package reconcile

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/cwrk-planet/room-sync/internal/deferred"
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/event"
	"github.com/cwrk-planet/room-sync/internal/notify"
	"github.com/cwrk-planet/room-sync/internal/snapshot"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

type Outcome string

const (
	Applied   Outcome = "applied"
	Rejected  Outcome = "rejected"
	Deferred  Outcome = "deferred"
	Ignored   Outcome = "ignored"
	Discarded Outcome = "discarded"
)

// Observer receives per-event outcomes, e.g. for metrics.
type Observer interface {
	Observe(roomID, eventName string, outcome Outcome)
	QueueDepth(roomID string, n int)
	Flushed(roomID string, n int)
}

type Options struct {
	Store    *snapshot.Store
	Queue    *deferred.Queue
	Notifier notify.Emitter
	Observer Observer
	Logger   *slog.Logger

	// OnVoteAction backs the "Open vote" / "View result" notification actions.
	OnVoteAction func(roomID, voteID string)
}

// Reconciler owns the snapshot of one room for the lifetime of a room view.
// HandleEvent and Replace are serialized: one event, including the replay it
// triggers, completes before the next starts.
type Reconciler struct {
	mu     sync.Mutex
	closed bool

	roomID   string
	store    *snapshot.Store
	queue    *deferred.Queue
	notifier notify.Emitter
	observer Observer
	log      *slog.Logger

	onVoteAction func(roomID, voteID string)
}

func New(roomID string, opts Options) *Reconciler {
	if opts.Store == nil {
		opts.Store = snapshot.NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Queue == nil {
		opts.Queue = deferred.New(deferred.Options{Logger: opts.Logger})
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}

	opts.Store.Open(roomID)

	return &Reconciler{
		roomID:       roomID,
		store:        opts.Store,
		queue:        opts.Queue,
		notifier:     opts.Notifier,
		observer:     opts.Observer,
		log:          opts.Logger.With(slog.String("component", "reconciler"), slog.String("room", roomID)),
		onVoteAction: opts.OnVoteAction,
	}
}

func (r *Reconciler) RoomID() string { return r.roomID }

// Snapshot returns the current snapshot. It never blocks on event processing.
func (r *Reconciler) Snapshot() (*domain.RoomSnapshot, bool) {
	return r.store.Get(r.roomID)
}

// Pending is the number of deferred events.
func (r *Reconciler) Pending() int { return r.queue.Len() }

// HandleEvent reconciles e and returns what happened to it. Events replayed
// from the deferred queue as a consequence are reported to the observer only.
func (r *Reconciler) HandleEvent(e event.Event) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Discarded
	}
	out := r.process(e)
	if r.observer != nil {
		r.observer.QueueDepth(r.roomID, r.queue.Len())
	}
	return out
}

// Replace installs a freshly fetched snapshot and discards every deferred
// event, since they refer to the superseded generation. After Close it does
// nothing and returns nil.
func (r *Reconciler) Replace(snap domain.RoomSnapshot) *domain.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	next := r.store.Replace(r.roomID, snap)
	flushed := r.queue.Flush()

	r.log.Info("snapshot replaced",
		slog.Uint64("generation", next.Generation),
		slog.Int("participants", len(next.Participants)),
		slog.Int("votes", len(next.Votes)),
		slog.Int("deferred_flushed", flushed),
	)
	if r.observer != nil {
		r.observer.Flushed(r.roomID, flushed)
		r.observer.QueueDepth(r.roomID, 0)
	}
	return next
}

// Close drops the room's snapshot and deferred events. The reconciler
// discards everything afterwards.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	r.queue.Flush()
	r.store.Drop(r.roomID)
	if r.observer != nil {
		r.observer.QueueDepth(r.roomID, 0)
	}
}

func (r *Reconciler) process(e event.Event) Outcome {
	if e == nil {
		r.log.Warn("nil event discarded")
		return Discarded
	}
	if room := e.Room(); room != "" && room != r.roomID {
		r.log.Debug("event for another room discarded",
			slog.String("event", e.Name()), slog.String("event_room", room))
		return r.done(e, Discarded)
	}

	var out Outcome
	switch ev := e.(type) {
	case event.ParticipantAdd:
		out = r.addParticipant(ev)
	case event.VoteUpdated:
		out = r.upsertVote(ev)
	case event.RoomUpdated:
		out = r.updateRoom(ev)
	case event.ParticipantReserved:
		r.log.Debug("reserved participant action ignored", slog.String("participant", ev.ParticipantID))
		out = Ignored
	case event.ParticipantEnter, event.ParticipantExit, event.ParticipantEdit,
		event.ParticipantDelete, event.VotePaperSubmitted:
		out = r.mutateKnown(e)
	default:
		r.log.Warn("unknown event discarded", slog.String("type", fmt.Sprintf("%T", e)))
		out = Discarded
	}

	r.done(e, out)
	if out == Applied {
		r.replay()
	}
	return out
}

func (r *Reconciler) done(e event.Event, out Outcome) Outcome {
	if r.observer != nil {
		r.observer.Observe(r.roomID, e.Name(), out)
	}
	return out
}

// replay runs every deferred event whose target is now known.
func (r *Reconciler) replay() {
	snap, _ := r.store.Get(r.roomID)
	ready := r.queue.DrainReplayable(snap)
	if len(ready) == 0 {
		return
	}
	r.log.Debug("replaying deferred events", slog.Int("count", len(ready)))
	for _, e := range ready {
		r.process(e)
	}
}

func (r *Reconciler) postpone(e event.Event) Outcome {
	r.queue.Enqueue(e)
	r.log.Debug("event deferred until target is known",
		slog.String("event", e.Name()),
		slog.String("target", e.Target().String()),
		slog.Int("pending", r.queue.Len()),
	)
	return Deferred
}

func (r *Reconciler) stale(e event.Event) Outcome {
	r.log.Debug("stale event dropped",
		slog.String("event", e.Name()),
		slog.String("target", e.Target().String()),
		slog.String("at", e.At().String()),
	)
	return Rejected
}

func (r *Reconciler) addParticipant(ev event.ParticipantAdd) Outcome {
	res, created := r.store.AddOrUpdateParticipant(r.roomID, ev.Participant)
	switch res {
	case snapshot.Rejected:
		return r.stale(ev)
	case snapshot.NotFound:
		// The room view was closed underneath us.
		return Discarded
	}

	if created {
		p := r.participant(ev.Participant.ID)
		r.notify(fmt.Sprintf("%s was added to the room", displayName(p)), p, nil)
	}
	return Applied
}

// mutateKnown handles every event that needs its target to exist already.
func (r *Reconciler) mutateKnown(e event.Event) Outcome {
	snap, _ := r.store.Get(r.roomID)
	if !snap.Has(e.Target()) {
		return r.postpone(e)
	}

	var (
		res    snapshot.Result
		notice func()
	)

	switch ev := e.(type) {
	case event.ParticipantEnter:
		before, _ := snap.Participant(ev.ParticipantID)
		res = r.store.UpdateParticipantIfNewer(r.roomID, ev.ParticipantID, func(p *domain.Participant) {
			p.IsEntered = true
			if ev.EnteredAt.Valid() {
				p.EnteredAt = ev.EnteredAt
			}
		}, ev.LastUpdatedAt)
		notice = r.participantNotice(before, "%s entered the room")

	case event.ParticipantExit:
		before, _ := snap.Participant(ev.ParticipantID)
		res = r.store.UpdateParticipantIfNewer(r.roomID, ev.ParticipantID, func(p *domain.Participant) {
			p.IsEntered = false
		}, ev.LastUpdatedAt)
		notice = r.participantNotice(before, "%s left the room")

	case event.ParticipantEdit:
		before, _ := snap.Participant(ev.ParticipantID)
		res = r.store.UpdateParticipantIfNewer(r.roomID, ev.ParticipantID, func(p *domain.Participant) {
			applyEdit(p, ev)
		}, ev.LastUpdatedAt)
		notice = r.participantNotice(before, "%s's details were updated")

	case event.ParticipantDelete:
		before, _ := snap.Participant(ev.ParticipantID)
		res = r.store.RemoveParticipantIfNewer(r.roomID, ev.ParticipantID, ev.LastUpdatedAt)
		notice = func() {
			r.notify(fmt.Sprintf("%s was removed from the room", displayName(before)), before, nil)
		}

	case event.VotePaperSubmitted:
		before, _ := snap.Vote(ev.VoteID)
		// Papers only accumulate, so their order against vote status changes
		// does not matter and the vote's lastUpdatedAt is left alone.
		res = r.store.UpdateVoteIfNewer(r.roomID, ev.VoteID, func(v *domain.Vote) {
			if !v.HasPaperFrom(ev.ParticipantID) {
				v.SubmittedPapers = append(v.SubmittedPapers, ev.ParticipantID)
			}
		}, timestamp.None())
		notice = func() {
			if before.HasPaperFrom(ev.ParticipantID) {
				return
			}
			who, ok := snap.Participant(ev.ParticipantID)
			name := ev.ParticipantID
			if ok {
				name = displayName(who)
			}
			after, _ := r.currentVote(ev.VoteID)
			r.notify(fmt.Sprintf("%s submitted a vote paper", name), after, nil)
		}
	}

	switch res {
	case snapshot.Applied:
		notice()
		return Applied
	case snapshot.Rejected:
		return r.stale(e)
	default:
		return r.postpone(e)
	}
}

// participantNotice emits message for the participant only when the applied
// change is observable, so a duplicate delivery stays silent.
func (r *Reconciler) participantNotice(before domain.Participant, message string) func() {
	return func() {
		after := r.participant(before.ID)
		if sameParticipant(before, after) {
			return
		}
		r.notify(fmt.Sprintf(message, displayName(after)), after, nil)
	}
}

func (r *Reconciler) upsertVote(ev event.VoteUpdated) Outcome {
	snap, _ := r.store.Get(r.roomID)
	before, _ := snap.Vote(ev.Vote.ID)

	res, created := r.store.UpsertVoteIfNewer(r.roomID, ev.Vote)
	switch res {
	case snapshot.Rejected:
		return r.stale(ev)
	case snapshot.NotFound:
		return Discarded
	}

	after, _ := r.currentVote(ev.Vote.ID)
	switch {
	case created:
		r.notify(fmt.Sprintf("Vote %q was created", after.Title), after, nil)
	case before.Status != after.Status:
		switch after.Status {
		case domain.VoteInProgress:
			r.notify(fmt.Sprintf("Vote %q started", after.Title), after, r.voteAction("Open vote", after.ID))
		case domain.VoteEnded:
			r.notify(fmt.Sprintf("Vote %q ended", after.Title), after, r.voteAction("View result", after.ID))
		}
	}
	return Applied
}

func (r *Reconciler) updateRoom(ev event.RoomUpdated) Outcome {
	snap, _ := r.store.Get(r.roomID)
	var before domain.Room
	if snap != nil {
		before = snap.Room
	}

	res := r.store.UpdateRoomIfNewer(r.roomID, func(room *domain.Room) {
		if ev.NewName != nil {
			room.Name = *ev.NewName
		}
		if ev.NewStatus != nil {
			room.Status = *ev.NewStatus
		}
	}, ev.LastUpdatedAt)

	switch res {
	case snapshot.Rejected:
		return r.stale(ev)
	case snapshot.NotFound:
		return Discarded
	}

	after, _ := r.store.Get(r.roomID)
	if before.Name != after.Room.Name || before.Status != after.Room.Status {
		r.notify("Room details were updated", after.Room, nil)
	}
	return Applied
}

func (r *Reconciler) voteAction(label, voteID string) *notify.Action {
	if r.onVoteAction == nil {
		return &notify.Action{Label: label}
	}
	roomID, cb := r.roomID, r.onVoteAction
	return &notify.Action{Label: label, OnInvoke: func() { cb(roomID, voteID) }}
}

func (r *Reconciler) notify(message string, detail any, action *notify.Action) {
	r.notifier.Notify(notify.Notification{
		RoomID:  r.roomID,
		Message: message,
		Detail:  detail,
		Action:  action,
	})
}

func (r *Reconciler) participant(id string) domain.Participant {
	snap, _ := r.store.Get(r.roomID)
	p, _ := snap.Participant(id)
	return p
}

func (r *Reconciler) currentVote(id string) (domain.Vote, bool) {
	snap, _ := r.store.Get(r.roomID)
	return snap.Vote(id)
}

func applyEdit(p *domain.Participant, ev event.ParticipantEdit) {
	if ev.NewName != nil && *ev.NewName != "" {
		p.Name = *ev.NewName
	}
	if ev.PositionSet {
		p.Position = ev.Position
	}
	if ev.RoleSet {
		p.Role = ev.Role
	}
}

// sameParticipant compares everything but lastUpdatedAt, so a redelivered
// or merely re-stamped event does not produce a second notice.
func sameParticipant(a, b domain.Participant) bool {
	b.LastUpdatedAt = a.LastUpdatedAt
	return reflect.DeepEqual(a, b)
}

func displayName(p domain.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
