package domain

import "github.com/cwrk-planet/room-sync/internal/timestamp"

type Participant struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	RoomID        string              `json:"roomId"`
	Position      *string             `json:"position,omitempty"`
	Role          *Role               `json:"participantRole,omitempty"`
	IsEntered     bool                `json:"isEntered"`
	CreatedAt     timestamp.Timestamp `json:"createdAt"`
	EnteredAt     timestamp.Timestamp `json:"enteredAt"`
	LastUpdatedAt timestamp.Timestamp `json:"lastUpdatedAt"`
}

// Clone returns a copy that shares no pointers with p.
func (p Participant) Clone() Participant {
	out := p
	if p.Position != nil {
		pos := *p.Position
		out.Position = &pos
	}
	if p.Role != nil {
		role := *p.Role
		out.Role = &role
	}
	return out
}

// CanVote reports whether the participant's role carries voting rights.
func (p Participant) CanVote() bool {
	return p.Role != nil && p.Role.CanVote
}
