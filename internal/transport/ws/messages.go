package ws

import "encoding/json"

// Inbound frame types on the room event stream.
const (
	TypeParticipantInfo = "PARTICIPANT_INFO"
	TypeRoomInfo        = "ROOM_INFO"
	TypeVoteInfo        = "VOTE_INFO"
	TypeVotePaperInfo   = "VOTE_PAPER_INFO"
)

// PARTICIPANT_INFO actions.
const (
	ActionEnter  = "ENTER"
	ActionExit   = "EXIT"
	ActionEdit   = "EDIT"
	ActionAdd    = "ADD"
	ActionDelete = "DELETE"
	ActionUUID   = "UUID"
)

// Outbound types on the notification feed.
const (
	TypeSnapshot     = "snapshot"     // current snapshot, sent once on subscribe
	TypeNotification = "notification" // an applied change worth telling the user about
)

// Envelope is one inbound frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Timestamps stay raw so a malformed value degrades to "absent" instead of
// failing the whole frame.
type ParticipantPayload struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	RoomID          string          `json:"roomId"`
	Position        *string         `json:"position"`
	ParticipantRole *RolePayload    `json:"participantRole"`
	IsEntered       bool            `json:"isEntered"`
	CreatedAt       json.RawMessage `json:"createdAt"`
	EnteredAt       json.RawMessage `json:"enteredAt"`
	LastUpdatedAt   json.RawMessage `json:"lastUpdatedAt"`
	Action          string          `json:"action"`
}

type RolePayload struct {
	Role    string `json:"role"`
	CanVote bool   `json:"canVote"`
}

type RoomPayload struct {
	ID            string          `json:"id"`
	Name          *string         `json:"name"`
	Status        *string         `json:"status"`
	LastUpdatedAt json.RawMessage `json:"lastUpdatedAt"`
}

type VotePayload struct {
	ID            string          `json:"id"`
	RoomID        string          `json:"roomId"`
	Title         string          `json:"title"`
	Status        string          `json:"status"`
	StartedAt     json.RawMessage `json:"startedAt"`
	EndedAt       json.RawMessage `json:"endedAt"`
	LastUpdatedAt json.RawMessage `json:"lastUpdatedAt"`
}

type VotePaperPayload struct {
	VoteID        string          `json:"voteId"`
	RoomID        string          `json:"roomId"`
	ParticipantID string          `json:"participantId"`
	SubmittedAt   json.RawMessage `json:"submittedAt"`
}

// Message is one outbound frame on the notification feed.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type NotificationPayload struct {
	RoomID      string `json:"room_id"`
	Message     string `json:"message"`
	Detail      any    `json:"detail,omitempty"`
	ActionLabel string `json:"action_label,omitempty"`
}
