package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/event"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

var (
	ErrMalformed     = errors.New("malformed frame")
	ErrUnknownType   = errors.New("unknown frame type")
	ErrUnknownAction = errors.New("unknown participant action")
)

// Decoder turns inbound frames into events. Bad timestamps are logged and
// treated as absent; everything else that does not fit is an error.
type Decoder struct {
	log *slog.Logger
}

func NewDecoder(l *slog.Logger) *Decoder {
	return &Decoder{log: logger.Component(l, "decoder")}
}

func (d *Decoder) Decode(frame []byte) (event.Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(bytes.TrimSpace(env.Data)) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
	}

	switch env.Type {
	case TypeParticipantInfo:
		return d.participant(env.Data)
	case TypeRoomInfo:
		return d.room(env.Data)
	case TypeVoteInfo:
		return d.vote(env.Data)
	case TypeVotePaperInfo:
		return d.paper(env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func (d *Decoder) participant(data json.RawMessage) (event.Event, error) {
	var p ParticipantPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: participant without id", ErrMalformed)
	}
	updated := d.ts("lastUpdatedAt", p.LastUpdatedAt)

	switch p.Action {
	case ActionEnter:
		return event.ParticipantEnter{
			RoomID:        p.RoomID,
			ParticipantID: p.ID,
			EnteredAt:     d.ts("enteredAt", p.EnteredAt),
			LastUpdatedAt: updated,
		}, nil

	case ActionExit:
		return event.ParticipantExit{RoomID: p.RoomID, ParticipantID: p.ID, LastUpdatedAt: updated}, nil

	case ActionEdit:
		present, err := keys(data)
		if err != nil {
			return nil, err
		}
		ev := event.ParticipantEdit{
			RoomID:        p.RoomID,
			ParticipantID: p.ID,
			LastUpdatedAt: updated,
		}
		if present["name"] && p.Name != "" {
			name := p.Name
			ev.NewName = &name
		}
		if present["position"] {
			ev.PositionSet = true
			ev.Position = p.Position
		}
		if present["participantRole"] {
			ev.RoleSet = true
			ev.Role = role(p.ParticipantRole)
		}
		return ev, nil

	case ActionAdd:
		return event.ParticipantAdd{Participant: domain.Participant{
			ID:            p.ID,
			Name:          p.Name,
			RoomID:        p.RoomID,
			Position:      p.Position,
			Role:          role(p.ParticipantRole),
			IsEntered:     p.IsEntered,
			CreatedAt:     d.ts("createdAt", p.CreatedAt),
			EnteredAt:     d.ts("enteredAt", p.EnteredAt),
			LastUpdatedAt: updated,
		}}, nil

	case ActionDelete:
		return event.ParticipantDelete{RoomID: p.RoomID, ParticipantID: p.ID, LastUpdatedAt: updated}, nil

	case ActionUUID:
		return event.ParticipantReserved{RoomID: p.RoomID, ParticipantID: p.ID, LastUpdatedAt: updated}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
}

func (d *Decoder) room(data json.RawMessage) (event.Event, error) {
	var r RoomPayload
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("%w: room without id", ErrMalformed)
	}
	return event.RoomUpdated{
		RoomID:        r.ID,
		NewName:       r.Name,
		NewStatus:     r.Status,
		LastUpdatedAt: d.ts("lastUpdatedAt", r.LastUpdatedAt),
	}, nil
}

func (d *Decoder) vote(data json.RawMessage) (event.Event, error) {
	var v VotePayload
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v.ID == "" {
		return nil, fmt.Errorf("%w: vote without id", ErrMalformed)
	}
	status := domain.VoteStatus(v.Status)
	switch status {
	case domain.VoteReady, domain.VoteInProgress, domain.VoteEnded:
	default:
		return nil, fmt.Errorf("%w: vote status %q", ErrMalformed, v.Status)
	}

	return event.VoteUpdated{Vote: domain.Vote{
		ID:            v.ID,
		RoomID:        v.RoomID,
		Title:         v.Title,
		Status:        status,
		StartedAt:     d.ts("startedAt", v.StartedAt),
		EndedAt:       d.ts("endedAt", v.EndedAt),
		LastUpdatedAt: d.ts("lastUpdatedAt", v.LastUpdatedAt),
	}}, nil
}

func (d *Decoder) paper(data json.RawMessage) (event.Event, error) {
	var p VotePaperPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.VoteID == "" || p.ParticipantID == "" {
		return nil, fmt.Errorf("%w: vote paper without vote or participant id", ErrMalformed)
	}
	return event.VotePaperSubmitted{
		RoomID:        p.RoomID,
		VoteID:        p.VoteID,
		ParticipantID: p.ParticipantID,
		SubmittedAt:   d.ts("submittedAt", p.SubmittedAt),
	}, nil
}

// ts fails open: an unreadable timestamp is absent, never an error.
func (d *Decoder) ts(field string, raw json.RawMessage) timestamp.Timestamp {
	if len(raw) == 0 {
		return timestamp.None()
	}
	var out timestamp.Timestamp
	if err := out.UnmarshalJSON(raw); err != nil {
		d.log.Warn("malformed timestamp treated as absent",
			slog.String("field", field),
			slog.String("raw", string(raw)),
		)
		return timestamp.None()
	}
	return out
}

func keys(data json.RawMessage) (map[string]bool, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out, nil
}

func role(r *RolePayload) *domain.Role {
	if r == nil {
		return nil
	}
	return &domain.Role{Name: r.Role, CanVote: r.CanVote}
}
