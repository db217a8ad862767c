package domain

import "testing"

func strPtr(s string) *string { return &s }

func TestRoomSnapshot_WithParticipantKeepsOriginal(t *testing.T) {
	orig := &RoomSnapshot{
		RoomID:       "r1",
		Participants: []Participant{{ID: "p1", Name: "Ann"}},
	}

	next := orig.WithParticipant(Participant{ID: "p1", Name: "Anna"})
	if orig.Participants[0].Name != "Ann" {
		t.Fatalf("original snapshot mutated: %q", orig.Participants[0].Name)
	}
	if next.Participants[0].Name != "Anna" {
		t.Fatalf("replacement not applied: %q", next.Participants[0].Name)
	}

	next = next.WithParticipant(Participant{ID: "p2", Name: "Bob"})
	if len(next.Participants) != 2 || next.Participants[1].ID != "p2" {
		t.Fatalf("append failed: %+v", next.Participants)
	}
	if len(orig.Participants) != 1 {
		t.Fatalf("original grew: %+v", orig.Participants)
	}
}

func TestRoomSnapshot_WithoutParticipant(t *testing.T) {
	orig := &RoomSnapshot{
		RoomID:       "r1",
		Participants: []Participant{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}},
	}
	next := orig.WithoutParticipant("p2")

	if len(next.Participants) != 2 || next.Participants[0].ID != "p1" || next.Participants[1].ID != "p3" {
		t.Fatalf("unexpected participants: %+v", next.Participants)
	}
	if len(orig.Participants) != 3 || orig.Participants[1].ID != "p2" {
		t.Fatalf("original mutated: %+v", orig.Participants)
	}
}

func TestRoomSnapshot_Has(t *testing.T) {
	s := &RoomSnapshot{
		RoomID:       "r1",
		Participants: []Participant{{ID: "p1"}},
		Votes:        []Vote{{ID: "v1"}},
	}

	cases := []struct {
		target Target
		want   bool
	}{
		{Target{Kind: KindRoom, ID: "r1"}, true},
		{Target{Kind: KindRoom, ID: "r2"}, false},
		{Target{Kind: KindParticipant, ID: "p1"}, true},
		{Target{Kind: KindParticipant, ID: "p9"}, false},
		{Target{Kind: KindVote, ID: "v1"}, true},
		{Target{Kind: KindVote, ID: "p1"}, false},
	}
	for _, c := range cases {
		if got := s.Has(c.target); got != c.want {
			t.Fatalf("Has(%s) = %v, want %v", c.target, got, c.want)
		}
	}

	var empty *RoomSnapshot
	if empty.Has(Target{Kind: KindParticipant, ID: "p1"}) {
		t.Fatalf("nil snapshot must not contain anything")
	}
}

func TestRoomSnapshot_CloneIsDeep(t *testing.T) {
	orig := &RoomSnapshot{
		RoomID: "r1",
		Participants: []Participant{{
			ID:       "p1",
			Position: strPtr("chair"),
			Role:     &Role{Name: "member", CanVote: true},
		}},
		Votes: []Vote{{ID: "v1", SubmittedPapers: []string{"p1"}}},
	}

	cp := orig.Clone()
	*cp.Participants[0].Position = "secretary"
	cp.Participants[0].Role.CanVote = false
	cp.Votes[0].SubmittedPapers[0] = "p2"

	if *orig.Participants[0].Position != "chair" || !orig.Participants[0].Role.CanVote {
		t.Fatalf("participant shared with clone: %+v", orig.Participants[0])
	}
	if orig.Votes[0].SubmittedPapers[0] != "p1" {
		t.Fatalf("vote papers shared with clone")
	}
}

func TestRoomSnapshot_ByPresence(t *testing.T) {
	s := &RoomSnapshot{Participants: []Participant{
		{ID: "p1", IsEntered: true},
		{ID: "p2"},
		{ID: "p3", IsEntered: true},
	}}
	got := s.ByPresence(true)
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p3" {
		t.Fatalf("unexpected entered list: %+v", got)
	}
	got = s.ByPresence(false)
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("unexpected absent list: %+v", got)
	}
}
