package ws

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/event"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func participantFrame(action, extra string) string {
	return `{"type":"PARTICIPANT_INFO","data":{"id":"p1","roomId":"r1","lastUpdatedAt":"2024-05-01T10:00:05Z","action":"` + action + `"` + extra + `}}`
}

func TestDecoder_ParticipantActions(t *testing.T) {
	d := NewDecoder(quiet())
	want := map[string]string{
		ActionEnter:  "participant.enter",
		ActionExit:   "participant.exit",
		ActionEdit:   "participant.edit",
		ActionAdd:    "participant.add",
		ActionDelete: "participant.delete",
		ActionUUID:   "participant.reserved",
	}
	at := timestamp.MustParse("2024-05-01T10:00:05Z")

	for action, name := range want {
		ev, err := d.Decode([]byte(participantFrame(action, "")))
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if ev.Name() != name {
			t.Fatalf("%s decoded as %s", action, ev.Name())
		}
		if ev.Room() != "r1" || ev.Target().ID != "p1" || !ev.At().Equal(at) {
			t.Fatalf("%s: room=%q target=%v at=%v", action, ev.Room(), ev.Target(), ev.At())
		}
	}
}

func TestDecoder_AddCarriesFullRecord(t *testing.T) {
	d := NewDecoder(quiet())
	frame := participantFrame(ActionAdd, `,"name":"Ann","position":"chair","participantRole":{"role":"member","canVote":true},"isEntered":true,"createdAt":1714557600000`)

	ev, err := d.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	add, ok := ev.(event.ParticipantAdd)
	if !ok {
		t.Fatalf("got %T", ev)
	}
	p := add.Participant
	if p.Name != "Ann" || p.Position == nil || *p.Position != "chair" || !p.CanVote() || !p.IsEntered {
		t.Fatalf("unexpected participant: %+v", p)
	}
	if !p.CreatedAt.Equal(timestamp.MustParse("1714557600000")) {
		t.Fatalf("epoch millis not parsed: %v", p.CreatedAt)
	}
}

func TestDecoder_EditFieldPresence(t *testing.T) {
	d := NewDecoder(quiet())

	ev, err := d.Decode([]byte(participantFrame(ActionEdit, `,"name":"Bo","position":null`)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	edit := ev.(event.ParticipantEdit)
	if edit.NewName == nil || *edit.NewName != "Bo" {
		t.Fatalf("name not carried: %+v", edit)
	}
	if !edit.PositionSet || edit.Position != nil {
		t.Fatalf("explicit null position must clear: %+v", edit)
	}
	if edit.RoleSet {
		t.Fatalf("absent role must not be set: %+v", edit)
	}

	ev, _ = d.Decode([]byte(participantFrame(ActionEdit, `,"participantRole":{"role":"guest","canVote":false}`)))
	edit = ev.(event.ParticipantEdit)
	if edit.NewName != nil || edit.PositionSet || !edit.RoleSet || edit.Role == nil || edit.Role.Name != "guest" {
		t.Fatalf("role-only edit: %+v", edit)
	}
}

func TestDecoder_MalformedTimestampFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	d := NewDecoder(slog.New(slog.NewTextHandler(&buf, nil)))

	ev, err := d.Decode([]byte(`{"type":"PARTICIPANT_INFO","data":{"id":"p1","action":"ENTER","lastUpdatedAt":"yesterday"}}`))
	if err != nil {
		t.Fatalf("frame must survive a bad timestamp: %v", err)
	}
	if ev.At().Valid() {
		t.Fatalf("bad timestamp must be absent, got %v", ev.At())
	}
	if !strings.Contains(buf.String(), "malformed timestamp") || !strings.Contains(buf.String(), "field=lastUpdatedAt") {
		t.Fatalf("warning not logged: %s", buf.String())
	}
}

func TestDecoder_OtherTypes(t *testing.T) {
	d := NewDecoder(quiet())

	ev, err := d.Decode([]byte(`{"type":"ROOM_INFO","data":{"id":"r1","name":"Board","lastUpdatedAt":"2024-05-01T10:00:00"}}`))
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	room := ev.(event.RoomUpdated)
	if room.NewName == nil || *room.NewName != "Board" || room.NewStatus != nil || !room.LastUpdatedAt.Valid() {
		t.Fatalf("room: %+v", room)
	}

	ev, err = d.Decode([]byte(`{"type":"VOTE_INFO","data":{"id":"v1","roomId":"r1","title":"Budget","status":"IN_PROGRESS","startedAt":"2024-05-01T10:00:00Z","endedAt":null}}`))
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	vote := ev.(event.VoteUpdated).Vote
	if vote.Status != domain.VoteInProgress || !vote.StartedAt.Valid() || vote.EndedAt.Valid() {
		t.Fatalf("vote: %+v", vote)
	}

	ev, err = d.Decode([]byte(`{"type":"VOTE_PAPER_INFO","data":{"voteId":"v1","roomId":"r1","participantId":"p1"}}`))
	if err != nil {
		t.Fatalf("paper: %v", err)
	}
	if ev.Target() != (domain.Target{Kind: domain.KindVote, ID: "v1"}) {
		t.Fatalf("paper target: %v", ev.Target())
	}
}

func TestDecoder_Rejects(t *testing.T) {
	d := NewDecoder(quiet())
	cases := []struct {
		frame string
		want  error
	}{
		{`{not json`, ErrMalformed},
		{`{"type":"PARTICIPANT_INFO"}`, ErrMalformed},
		{`{"type":"PARTICIPANT_INFO","data":{"action":"ENTER"}}`, ErrMalformed},
		{`{"type":"PARTICIPANT_INFO","data":{"id":"p1","action":"TELEPORT"}}`, ErrUnknownAction},
		{`{"type":"CHAT","data":{}}`, ErrUnknownType},
		{`{"type":"VOTE_INFO","data":{"id":"v1","status":"PAUSED"}}`, ErrMalformed},
		{`{"type":"VOTE_PAPER_INFO","data":{"voteId":"v1"}}`, ErrMalformed},
	}
	for _, c := range cases {
		if _, err := d.Decode([]byte(c.frame)); !errors.Is(err, c.want) {
			t.Fatalf("%s: err = %v, want %v", c.frame, err, c.want)
		}
	}
}
