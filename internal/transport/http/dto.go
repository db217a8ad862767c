package http

import "github.com/cwrk-planet/room-sync/internal/domain"

type ParticipantsResponse struct {
	Generation uint64               `json:"generation"`
	Items      []domain.Participant `json:"items"`
}

type VotesResponse struct {
	Generation uint64        `json:"generation"`
	Items      []domain.Vote `json:"items"`
}

type RefreshResponse struct {
	RoomID     string `json:"roomId"`
	Generation uint64 `json:"generation"`
}
