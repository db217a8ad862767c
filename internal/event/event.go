// Package event defines the inbound room changes the reconciler consumes.
//
// Event is a closed union: only the types declared here implement it, and
// consumers switch over them by type.
package event

import (
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

type Event interface {
	// Name identifies the event kind in logs and metrics, e.g. "participant.enter".
	Name() string
	Room() string
	Target() domain.Target
	// At is the server lastUpdatedAt of the change. It may be absent.
	At() timestamp.Timestamp

	sealed()
}

// ParticipantEnter marks a participant as present.
type ParticipantEnter struct {
	RoomID        string
	ParticipantID string
	EnteredAt     timestamp.Timestamp
	LastUpdatedAt timestamp.Timestamp
}

// ParticipantExit marks a participant as absent.
type ParticipantExit struct {
	RoomID        string
	ParticipantID string
	LastUpdatedAt timestamp.Timestamp
}

// ParticipantEdit carries the editable fields present in the payload. A nil
// NewName leaves the name alone; Position and Role apply only when their Set
// flag is true, and a nil value clears them.
type ParticipantEdit struct {
	RoomID        string
	ParticipantID string
	NewName       *string
	PositionSet   bool
	Position      *string
	RoleSet       bool
	Role          *domain.Role
	LastUpdatedAt timestamp.Timestamp
}

// ParticipantAdd introduces a participant, or refreshes a known one.
type ParticipantAdd struct {
	Participant domain.Participant
}

type ParticipantDelete struct {
	RoomID        string
	ParticipantID string
	LastUpdatedAt timestamp.Timestamp
}

// ParticipantReserved is the wire action "UUID". It has no defined meaning
// and is never applied.
type ParticipantReserved struct {
	RoomID        string
	ParticipantID string
	LastUpdatedAt timestamp.Timestamp
}

// RoomUpdated changes room meta. Nil fields are left alone.
type RoomUpdated struct {
	RoomID        string
	NewName       *string
	NewStatus     *string
	LastUpdatedAt timestamp.Timestamp
}

// VoteUpdated creates a vote or changes its status.
type VoteUpdated struct {
	Vote domain.Vote
}

// VotePaperSubmitted records that a participant handed in a vote paper.
type VotePaperSubmitted struct {
	RoomID        string
	VoteID        string
	ParticipantID string
	SubmittedAt   timestamp.Timestamp
}

func participantTarget(id string) domain.Target {
	return domain.Target{Kind: domain.KindParticipant, ID: id}
}

func (e ParticipantEnter) Name() string            { return "participant.enter" }
func (e ParticipantEnter) Room() string            { return e.RoomID }
func (e ParticipantEnter) Target() domain.Target   { return participantTarget(e.ParticipantID) }
func (e ParticipantEnter) At() timestamp.Timestamp { return e.LastUpdatedAt }
func (ParticipantEnter) sealed()                   {}

func (e ParticipantExit) Name() string            { return "participant.exit" }
func (e ParticipantExit) Room() string            { return e.RoomID }
func (e ParticipantExit) Target() domain.Target   { return participantTarget(e.ParticipantID) }
func (e ParticipantExit) At() timestamp.Timestamp { return e.LastUpdatedAt }
func (ParticipantExit) sealed()                   {}

func (e ParticipantEdit) Name() string            { return "participant.edit" }
func (e ParticipantEdit) Room() string            { return e.RoomID }
func (e ParticipantEdit) Target() domain.Target   { return participantTarget(e.ParticipantID) }
func (e ParticipantEdit) At() timestamp.Timestamp { return e.LastUpdatedAt }
func (ParticipantEdit) sealed()                   {}

func (e ParticipantAdd) Name() string            { return "participant.add" }
func (e ParticipantAdd) Room() string            { return e.Participant.RoomID }
func (e ParticipantAdd) Target() domain.Target   { return participantTarget(e.Participant.ID) }
func (e ParticipantAdd) At() timestamp.Timestamp { return e.Participant.LastUpdatedAt }
func (ParticipantAdd) sealed()                   {}

func (e ParticipantDelete) Name() string            { return "participant.delete" }
func (e ParticipantDelete) Room() string            { return e.RoomID }
func (e ParticipantDelete) Target() domain.Target   { return participantTarget(e.ParticipantID) }
func (e ParticipantDelete) At() timestamp.Timestamp { return e.LastUpdatedAt }
func (ParticipantDelete) sealed()                   {}

func (e ParticipantReserved) Name() string            { return "participant.reserved" }
func (e ParticipantReserved) Room() string            { return e.RoomID }
func (e ParticipantReserved) Target() domain.Target   { return participantTarget(e.ParticipantID) }
func (e ParticipantReserved) At() timestamp.Timestamp { return e.LastUpdatedAt }
func (ParticipantReserved) sealed()                   {}

func (e RoomUpdated) Name() string { return "room.update" }
func (e RoomUpdated) Room() string { return e.RoomID }
func (e RoomUpdated) Target() domain.Target {
	return domain.Target{Kind: domain.KindRoom, ID: e.RoomID}
}
func (e RoomUpdated) At() timestamp.Timestamp { return e.LastUpdatedAt }
func (RoomUpdated) sealed()                   {}

func (e VoteUpdated) Name() string { return "vote.update" }
func (e VoteUpdated) Room() string { return e.Vote.RoomID }
func (e VoteUpdated) Target() domain.Target {
	return domain.Target{Kind: domain.KindVote, ID: e.Vote.ID}
}
func (e VoteUpdated) At() timestamp.Timestamp { return e.Vote.LastUpdatedAt }
func (VoteUpdated) sealed()                   {}

func (e VotePaperSubmitted) Name() string { return "vote.paper" }
func (e VotePaperSubmitted) Room() string { return e.RoomID }
func (e VotePaperSubmitted) Target() domain.Target {
	return domain.Target{Kind: domain.KindVote, ID: e.VoteID}
}
func (e VotePaperSubmitted) At() timestamp.Timestamp { return e.SubmittedAt }
func (VotePaperSubmitted) sealed()                   {}
