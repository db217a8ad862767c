package domain

import (
	"slices"

	"github.com/samber/lo"
)

// RoomSnapshot is the locally cached view of one room. Values handed out by
// the snapshot store are never mutated; every change builds a new value.
type RoomSnapshot struct {
	RoomID       string        `json:"roomId"`
	Generation   uint64        `json:"generation"`
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
	Roles        []Role        `json:"roles"`
	Votes        []Vote        `json:"votes"`
}

// EntityKind names the collection an event targets.
type EntityKind string

const (
	KindRoom        EntityKind = "room"
	KindParticipant EntityKind = "participant"
	KindVote        EntityKind = "vote"
)

type Target struct {
	Kind EntityKind
	ID   string
}

func (t Target) String() string { return string(t.Kind) + ":" + t.ID }

func (s *RoomSnapshot) participantIndex(id string) int {
	return slices.IndexFunc(s.Participants, func(p Participant) bool { return p.ID == id })
}

func (s *RoomSnapshot) voteIndex(id string) int {
	return slices.IndexFunc(s.Votes, func(v Vote) bool { return v.ID == id })
}

func (s *RoomSnapshot) Participant(id string) (Participant, bool) {
	if s == nil {
		return Participant{}, false
	}
	i := s.participantIndex(id)
	if i < 0 {
		return Participant{}, false
	}
	return s.Participants[i], true
}

func (s *RoomSnapshot) Vote(id string) (Vote, bool) {
	if s == nil {
		return Vote{}, false
	}
	i := s.voteIndex(id)
	if i < 0 {
		return Vote{}, false
	}
	return s.Votes[i], true
}

// Has reports whether the entity t points at is present.
func (s *RoomSnapshot) Has(t Target) bool {
	if s == nil {
		return false
	}
	switch t.Kind {
	case KindRoom:
		return s.RoomID == t.ID
	case KindParticipant:
		return s.participantIndex(t.ID) >= 0
	case KindVote:
		return s.voteIndex(t.ID) >= 0
	default:
		return false
	}
}

// Clone deep-copies the snapshot.
func (s *RoomSnapshot) Clone() *RoomSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		out.Participants[i] = p.Clone()
	}
	out.Roles = slices.Clone(s.Roles)
	out.Votes = make([]Vote, len(s.Votes))
	for i, v := range s.Votes {
		out.Votes[i] = v.Clone()
	}
	return &out
}

// WithParticipant returns a shallow copy of s with the participant at id
// replaced by p, or p appended when id is unknown.
func (s *RoomSnapshot) WithParticipant(p Participant) *RoomSnapshot {
	out := *s
	out.Participants = slices.Clone(s.Participants)
	if i := s.participantIndex(p.ID); i >= 0 {
		out.Participants[i] = p
	} else {
		out.Participants = append(out.Participants, p)
	}
	return &out
}

func (s *RoomSnapshot) WithoutParticipant(id string) *RoomSnapshot {
	out := *s
	out.Participants = slices.DeleteFunc(slices.Clone(s.Participants), func(p Participant) bool { return p.ID == id })
	return &out
}

func (s *RoomSnapshot) WithVote(v Vote) *RoomSnapshot {
	out := *s
	out.Votes = slices.Clone(s.Votes)
	if i := s.voteIndex(v.ID); i >= 0 {
		out.Votes[i] = v
	} else {
		out.Votes = append(out.Votes, v)
	}
	return &out
}

func (s *RoomSnapshot) WithRoom(r Room) *RoomSnapshot {
	out := *s
	out.Room = r
	return &out
}

// ByPresence returns the participants whose IsEntered equals entered.
func (s *RoomSnapshot) ByPresence(entered bool) []Participant {
	if s == nil {
		return nil
	}
	return lo.Filter(s.Participants, func(p Participant, _ int) bool { return p.IsEntered == entered })
}
