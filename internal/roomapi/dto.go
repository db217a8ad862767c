package roomapi

import (
	"log/slog"
	"strconv"

	"github.com/samber/lo"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

// Timestamps are read as raw strings so that one bad value does not fail
// the whole refresh.
type roomDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	LastUpdatedAt any    `json:"lastUpdatedAt"`
}

type roleDTO struct {
	Role    string `json:"role"`
	CanVote bool   `json:"canVote"`
}

type participantDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	RoomID          string   `json:"roomId"`
	Position        *string  `json:"position"`
	ParticipantRole *roleDTO `json:"participantRole"`
	IsEntered       bool     `json:"isEntered"`
	CreatedAt       any      `json:"createdAt"`
	EnteredAt       any      `json:"enteredAt"`
	LastUpdatedAt   any      `json:"lastUpdatedAt"`
}

type voteDTO struct {
	ID              string   `json:"id"`
	RoomID          string   `json:"roomId"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	StartedAt       any      `json:"startedAt"`
	EndedAt         any      `json:"endedAt"`
	SubmittedPapers []string `json:"submittedPapers"`
	LastUpdatedAt   any      `json:"lastUpdatedAt"`
}

type mapper struct {
	log *slog.Logger
}

func (m mapper) ts(field string, v any) timestamp.Timestamp {
	var raw string
	switch x := v.(type) {
	case nil:
		return timestamp.None()
	case string:
		raw = x
	case float64:
		// Epoch milliseconds.
		raw = strconv.FormatFloat(x, 'f', 0, 64)
	default:
		m.log.Warn("malformed timestamp treated as absent", slog.String("field", field), slog.Any("raw", v))
		return timestamp.None()
	}
	out, err := timestamp.Parse(raw)
	if err != nil {
		m.log.Warn("malformed timestamp treated as absent", slog.String("field", field), slog.String("raw", raw))
		return timestamp.None()
	}
	return out
}

func (m mapper) room(in roomDTO) domain.Room {
	return domain.Room{
		ID:            in.ID,
		Name:          in.Name,
		Status:        in.Status,
		LastUpdatedAt: m.ts("lastUpdatedAt", in.LastUpdatedAt),
	}
}

func (m mapper) roles(in []roleDTO) []domain.Role {
	return lo.Map(in, func(r roleDTO, _ int) domain.Role {
		return domain.Role{Name: r.Role, CanVote: r.CanVote}
	})
}

func (m mapper) participants(in []participantDTO) []domain.Participant {
	in = lo.UniqBy(in, func(p participantDTO) string { return p.ID })
	return lo.FilterMap(in, func(p participantDTO, _ int) (domain.Participant, bool) {
		if p.ID == "" {
			m.log.Warn("participant without id skipped")
			return domain.Participant{}, false
		}
		out := domain.Participant{
			ID:            p.ID,
			Name:          p.Name,
			RoomID:        p.RoomID,
			Position:      p.Position,
			IsEntered:     p.IsEntered,
			CreatedAt:     m.ts("createdAt", p.CreatedAt),
			EnteredAt:     m.ts("enteredAt", p.EnteredAt),
			LastUpdatedAt: m.ts("lastUpdatedAt", p.LastUpdatedAt),
		}
		if p.ParticipantRole != nil {
			out.Role = &domain.Role{Name: p.ParticipantRole.Role, CanVote: p.ParticipantRole.CanVote}
		}
		return out, true
	})
}

func (m mapper) votes(in []voteDTO) []domain.Vote {
	in = lo.UniqBy(in, func(v voteDTO) string { return v.ID })
	return lo.FilterMap(in, func(v voteDTO, _ int) (domain.Vote, bool) {
		if v.ID == "" {
			m.log.Warn("vote without id skipped")
			return domain.Vote{}, false
		}
		return domain.Vote{
			ID:              v.ID,
			RoomID:          v.RoomID,
			Title:           v.Title,
			Status:          domain.VoteStatus(v.Status),
			StartedAt:       m.ts("startedAt", v.StartedAt),
			EndedAt:         m.ts("endedAt", v.EndedAt),
			SubmittedPapers: lo.Uniq(v.SubmittedPapers),
			LastUpdatedAt:   m.ts("lastUpdatedAt", v.LastUpdatedAt),
		}, true
	})
}
