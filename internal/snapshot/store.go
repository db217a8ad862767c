// Package snapshot keeps the in-memory room snapshots and mediates every
// change through set-if-newer primitives, so out-of-order writers cannot
// regress state.
//
// Snapshots returned by the store are immutable. A mutation copies the
// affected record, applies the change and swaps a new snapshot value in
// under the write lock, so readers see either the old or the new snapshot.
package snapshot

import (
	"slices"
	"sync"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

// Result is the informational outcome of a conditional update.
type Result int

const (
	NotFound Result = iota
	Rejected
	Applied
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	default:
		return "not_found"
	}
}

type Store struct {
	mu    sync.RWMutex
	rooms map[string]*domain.RoomSnapshot
}

func NewStore() *Store {
	return &Store{rooms: make(map[string]*domain.RoomSnapshot)}
}

// Get returns the current snapshot of roomID. The result must not be modified.
func (s *Store) Get(roomID string) (*domain.RoomSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.rooms[roomID]
	return snap, ok
}

// Open returns the snapshot of roomID, creating an empty one if needed.
func (s *Store) Open(roomID string) *domain.RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.rooms[roomID]; ok {
		return snap
	}
	snap := &domain.RoomSnapshot{
		RoomID: roomID,
		Room:   domain.Room{ID: roomID},
	}
	s.rooms[roomID] = snap
	return snap
}

// Replace overwrites the snapshot of roomID unconditionally. Timestamps of
// the previous generation are forgotten.
func (s *Store) Replace(roomID string, snap domain.RoomSnapshot) *domain.RoomSnapshot {
	next := snap.Clone()
	next.RoomID = roomID
	if next.Room.ID == "" {
		next.Room.ID = roomID
	}
	for i := range next.Participants {
		if next.Participants[i].RoomID == "" {
			next.Participants[i].RoomID = roomID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.rooms[roomID]; ok {
		next.Generation = prev.Generation + 1
	} else {
		next.Generation = 1
	}
	s.rooms[roomID] = next
	return next
}

// Drop discards the snapshot of roomID.
func (s *Store) Drop(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// UpdateParticipantIfNewer runs mutate on a copy of the participant and swaps
// it in, unless the cached record is strictly newer than incoming. The
// mutator cannot change id, roomId or createdAt.
func (s *Store) UpdateParticipantIfNewer(roomID, participantID string, mutate func(*domain.Participant), incoming timestamp.Timestamp) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rooms[roomID]
	if !ok {
		return NotFound
	}
	cur, ok := snap.Participant(participantID)
	if !ok {
		return NotFound
	}
	if !timestamp.IsNewerOrEqual(cur.LastUpdatedAt, incoming) {
		return Rejected
	}

	next := cur.Clone()
	mutate(&next)
	next.ID = cur.ID
	next.RoomID = cur.RoomID
	next.CreatedAt = cur.CreatedAt
	next.LastUpdatedAt = stamp(cur.LastUpdatedAt, incoming)

	s.rooms[roomID] = snap.WithParticipant(next)
	return Applied
}

// AddOrUpdateParticipant inserts p, or merges it into the cached record under
// the newer-wins rule. created reports whether the id was new.
func (s *Store) AddOrUpdateParticipant(roomID string, p domain.Participant) (res Result, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rooms[roomID]
	if !ok {
		return NotFound, false
	}

	next := p.Clone()
	next.RoomID = roomID

	cur, known := snap.Participant(p.ID)
	if !known {
		s.rooms[roomID] = snap.WithParticipant(next)
		return Applied, true
	}
	if !timestamp.IsNewerOrEqual(cur.LastUpdatedAt, p.LastUpdatedAt) {
		return Rejected, false
	}

	if cur.CreatedAt.Valid() {
		next.CreatedAt = cur.CreatedAt
	}
	next.LastUpdatedAt = stamp(cur.LastUpdatedAt, p.LastUpdatedAt)

	s.rooms[roomID] = snap.WithParticipant(next)
	return Applied, false
}

// RemoveParticipantIfNewer deletes the participant unless the cached record
// is strictly newer than incoming.
func (s *Store) RemoveParticipantIfNewer(roomID, participantID string, incoming timestamp.Timestamp) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rooms[roomID]
	if !ok {
		return NotFound
	}
	cur, ok := snap.Participant(participantID)
	if !ok {
		return NotFound
	}
	if !timestamp.IsNewerOrEqual(cur.LastUpdatedAt, incoming) {
		return Rejected
	}

	s.rooms[roomID] = snap.WithoutParticipant(participantID)
	return Applied
}

// UpsertVoteIfNewer inserts v or merges it into the cached vote under the
// newer-wins rule. Fields v leaves empty (title, status, start and end
// times) keep their cached values. Submitted papers are only ever added.
func (s *Store) UpsertVoteIfNewer(roomID string, v domain.Vote) (res Result, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rooms[roomID]
	if !ok {
		return NotFound, false
	}

	next := v.Clone()
	next.RoomID = roomID

	cur, known := snap.Vote(v.ID)
	if !known {
		s.rooms[roomID] = snap.WithVote(next)
		return Applied, true
	}
	if !timestamp.IsNewerOrEqual(cur.LastUpdatedAt, v.LastUpdatedAt) {
		return Rejected, false
	}

	if next.Title == "" {
		next.Title = cur.Title
	}
	if next.Status == "" {
		next.Status = cur.Status
	}
	if !next.StartedAt.Valid() {
		next.StartedAt = cur.StartedAt
	}
	if !next.EndedAt.Valid() {
		next.EndedAt = cur.EndedAt
	}
	next.SubmittedPapers = mergePapers(cur.SubmittedPapers, v.SubmittedPapers)
	next.LastUpdatedAt = stamp(cur.LastUpdatedAt, v.LastUpdatedAt)

	s.rooms[roomID] = snap.WithVote(next)
	return Applied, false
}

// UpdateVoteIfNewer is UpdateParticipantIfNewer for votes.
func (s *Store) UpdateVoteIfNewer(roomID, voteID string, mutate func(*domain.Vote), incoming timestamp.Timestamp) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rooms[roomID]
	if !ok {
		return NotFound
	}
	cur, ok := snap.Vote(voteID)
	if !ok {
		return NotFound
	}
	if !timestamp.IsNewerOrEqual(cur.LastUpdatedAt, incoming) {
		return Rejected
	}

	next := cur.Clone()
	mutate(&next)
	next.ID = cur.ID
	next.RoomID = cur.RoomID
	next.LastUpdatedAt = stamp(cur.LastUpdatedAt, incoming)

	s.rooms[roomID] = snap.WithVote(next)
	return Applied
}

// UpdateRoomIfNewer applies mutate to the room meta of roomID.
func (s *Store) UpdateRoomIfNewer(roomID string, mutate func(*domain.Room), incoming timestamp.Timestamp) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.rooms[roomID]
	if !ok {
		return NotFound
	}
	cur := snap.Room
	if !timestamp.IsNewerOrEqual(cur.LastUpdatedAt, incoming) {
		return Rejected
	}

	next := cur
	mutate(&next)
	next.ID = roomID
	next.LastUpdatedAt = stamp(cur.LastUpdatedAt, incoming)

	s.rooms[roomID] = snap.WithRoom(next)
	return Applied
}

// stamp is the lastUpdatedAt of an accepted change: the incoming value, or
// the cached one when the event carried none.
func stamp(current, incoming timestamp.Timestamp) timestamp.Timestamp {
	if incoming.Valid() {
		return incoming
	}
	return current
}

func mergePapers(have, add []string) []string {
	out := slices.Clone(have)
	for _, id := range add {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
