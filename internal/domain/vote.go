package domain

import (
	"slices"

	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

type VoteStatus string

const (
	VoteReady      VoteStatus = "READY"
	VoteInProgress VoteStatus = "IN_PROGRESS"
	VoteEnded      VoteStatus = "ENDED"
)

type Vote struct {
	ID              string              `json:"id"`
	RoomID          string              `json:"roomId"`
	Title           string              `json:"title"`
	Status          VoteStatus          `json:"status"`
	StartedAt       timestamp.Timestamp `json:"startedAt"`
	EndedAt         timestamp.Timestamp `json:"endedAt"`
	SubmittedPapers []string            `json:"submittedPapers"`
	LastUpdatedAt   timestamp.Timestamp `json:"lastUpdatedAt"`
}

func (v Vote) Clone() Vote {
	out := v
	out.SubmittedPapers = slices.Clone(v.SubmittedPapers)
	return out
}

// HasPaperFrom reports whether participantID already submitted a paper.
func (v Vote) HasPaperFrom(participantID string) bool {
	return slices.Contains(v.SubmittedPapers, participantID)
}
