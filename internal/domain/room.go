package domain

import "github.com/cwrk-planet/room-sync/internal/timestamp"

type Room struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Status        string              `json:"status,omitempty"`
	LastUpdatedAt timestamp.Timestamp `json:"lastUpdatedAt"`
}

// Role is a room role as listed by the room API.
type Role struct {
	Name    string `json:"role"`
	CanVote bool   `json:"canVote"`
}
