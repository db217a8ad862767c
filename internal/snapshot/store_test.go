package snapshot

import (
	"sync"
	"testing"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/timestamp"
)

var (
	t0 = timestamp.MustParse("2024-05-01T10:00:00Z")
	t1 = timestamp.MustParse("2024-05-01T10:00:10Z")
	t2 = timestamp.MustParse("2024-05-01T10:00:20Z")
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.Replace("r1", domain.RoomSnapshot{
		Participants: []domain.Participant{
			{ID: "p1", Name: "Ann", CreatedAt: t0, LastUpdatedAt: t1},
		},
	})
	return s
}

func participant(t *testing.T, s *Store, id string) domain.Participant {
	t.Helper()
	snap, ok := s.Get("r1")
	if !ok {
		t.Fatalf("room r1 missing")
	}
	p, ok := snap.Participant(id)
	if !ok {
		t.Fatalf("participant %s missing", id)
	}
	return p
}

func TestStore_OpenAndReplace(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("r1"); ok {
		t.Fatalf("unexpected snapshot before Open")
	}

	empty := s.Open("r1")
	if empty.RoomID != "r1" || len(empty.Participants) != 0 {
		t.Fatalf("unexpected empty snapshot: %+v", empty)
	}
	if again := s.Open("r1"); again != empty {
		t.Fatalf("Open must return the existing snapshot")
	}

	first := s.Replace("r1", domain.RoomSnapshot{Participants: []domain.Participant{{ID: "p1"}}})
	second := s.Replace("r1", domain.RoomSnapshot{})
	if second.Generation != first.Generation+1 {
		t.Fatalf("generation not bumped: %d -> %d", first.Generation, second.Generation)
	}
	if first.Participants[0].RoomID != "r1" {
		t.Fatalf("replace must stamp room id on participants")
	}

	s.Drop("r1")
	if _, ok := s.Get("r1"); ok {
		t.Fatalf("snapshot still present after Drop")
	}
}

func TestStore_UpdateParticipantIfNewer(t *testing.T) {
	s := seeded(t)

	res := s.UpdateParticipantIfNewer("r1", "p1", func(p *domain.Participant) { p.Name = "stale" }, t0)
	if res != Rejected {
		t.Fatalf("older update: got %v, want rejected", res)
	}
	if got := participant(t, s, "p1"); got.Name != "Ann" || !got.LastUpdatedAt.Equal(t1) {
		t.Fatalf("rejected update leaked: %+v", got)
	}

	res = s.UpdateParticipantIfNewer("r1", "p1", func(p *domain.Participant) { p.Name = "Anna" }, t2)
	if res != Applied {
		t.Fatalf("newer update: got %v, want applied", res)
	}
	if got := participant(t, s, "p1"); got.Name != "Anna" || !got.LastUpdatedAt.Equal(t2) {
		t.Fatalf("applied update missing: %+v", got)
	}

	res = s.UpdateParticipantIfNewer("r1", "p1", func(p *domain.Participant) { p.IsEntered = true }, timestamp.None())
	if res != Applied {
		t.Fatalf("update without timestamp must pass: %v", res)
	}
	if got := participant(t, s, "p1"); !got.IsEntered || !got.LastUpdatedAt.Equal(t2) {
		t.Fatalf("absent timestamp must keep lastUpdatedAt: %+v", got)
	}

	if res := s.UpdateParticipantIfNewer("r1", "nobody", func(*domain.Participant) {}, t2); res != NotFound {
		t.Fatalf("unknown participant: got %v", res)
	}
	if res := s.UpdateParticipantIfNewer("r9", "p1", func(*domain.Participant) {}, t2); res != NotFound {
		t.Fatalf("unknown room: got %v", res)
	}
}

func TestStore_RejectedNeverInvokesMutator(t *testing.T) {
	s := seeded(t)
	called := false
	s.UpdateParticipantIfNewer("r1", "p1", func(*domain.Participant) { called = true }, t0)
	if called {
		t.Fatalf("mutator invoked for a stale update")
	}
}

func TestStore_MutatorCannotChangeIdentity(t *testing.T) {
	s := seeded(t)
	s.UpdateParticipantIfNewer("r1", "p1", func(p *domain.Participant) {
		p.ID = "hijack"
		p.RoomID = "r2"
		p.CreatedAt = t2
	}, t2)

	got := participant(t, s, "p1")
	if got.ID != "p1" || got.RoomID != "r1" || !got.CreatedAt.Equal(t0) {
		t.Fatalf("identity fields changed: %+v", got)
	}
}

func TestStore_UpdateDoesNotTouchPreviousSnapshot(t *testing.T) {
	s := seeded(t)
	before, _ := s.Get("r1")

	s.UpdateParticipantIfNewer("r1", "p1", func(p *domain.Participant) { p.Name = "Anna" }, t2)

	if before.Participants[0].Name != "Ann" {
		t.Fatalf("reader-held snapshot was modified in place")
	}
}

func TestStore_AddOrUpdateParticipant(t *testing.T) {
	s := seeded(t)

	res, created := s.AddOrUpdateParticipant("r1", domain.Participant{ID: "p2", Name: "Bob", LastUpdatedAt: t1})
	if res != Applied || !created {
		t.Fatalf("insert: res=%v created=%v", res, created)
	}

	res, created = s.AddOrUpdateParticipant("r1", domain.Participant{ID: "p1", Name: "old", LastUpdatedAt: t0})
	if res != Rejected || created {
		t.Fatalf("stale add: res=%v created=%v", res, created)
	}
	if got := participant(t, s, "p1"); got.Name != "Ann" {
		t.Fatalf("stale add regressed state: %+v", got)
	}

	res, created = s.AddOrUpdateParticipant("r1", domain.Participant{ID: "p1", Name: "Anna", LastUpdatedAt: t2})
	if res != Applied || created {
		t.Fatalf("merge add: res=%v created=%v", res, created)
	}
	got := participant(t, s, "p1")
	if got.Name != "Anna" || !got.CreatedAt.Equal(t0) {
		t.Fatalf("merge add: %+v", got)
	}

	if res, _ := s.AddOrUpdateParticipant("r9", domain.Participant{ID: "p1"}); res != NotFound {
		t.Fatalf("unknown room: %v", res)
	}
}

func TestStore_RemoveParticipantIfNewer(t *testing.T) {
	s := seeded(t)

	if res := s.RemoveParticipantIfNewer("r1", "p1", t0); res != Rejected {
		t.Fatalf("late delete: got %v", res)
	}
	participant(t, s, "p1")

	if res := s.RemoveParticipantIfNewer("r1", "p1", t2); res != Applied {
		t.Fatalf("delete: got %v", res)
	}
	snap, _ := s.Get("r1")
	if _, ok := snap.Participant("p1"); ok {
		t.Fatalf("participant still present after delete")
	}
	if res := s.RemoveParticipantIfNewer("r1", "p1", t2); res != NotFound {
		t.Fatalf("second delete: got %v", res)
	}
}

func TestStore_Votes(t *testing.T) {
	s := seeded(t)

	res, created := s.UpsertVoteIfNewer("r1", domain.Vote{ID: "v1", Status: domain.VoteReady, LastUpdatedAt: t0})
	if res != Applied || !created {
		t.Fatalf("insert vote: res=%v created=%v", res, created)
	}

	res = s.UpdateVoteIfNewer("r1", "v1", func(v *domain.Vote) {
		v.SubmittedPapers = append(v.SubmittedPapers, "p1")
	}, t1)
	if res != Applied {
		t.Fatalf("paper: %v", res)
	}

	res, _ = s.UpsertVoteIfNewer("r1", domain.Vote{ID: "v1", Status: domain.VoteInProgress, LastUpdatedAt: t2})
	if res != Applied {
		t.Fatalf("status change: %v", res)
	}

	snap, _ := s.Get("r1")
	v, _ := snap.Vote("v1")
	if v.Status != domain.VoteInProgress || !v.HasPaperFrom("p1") {
		t.Fatalf("papers must survive a status upsert: %+v", v)
	}

	res, _ = s.UpsertVoteIfNewer("r1", domain.Vote{ID: "v1", Status: domain.VoteReady, LastUpdatedAt: t1})
	if res != Rejected {
		t.Fatalf("stale status must be rejected: %v", res)
	}
}

func TestStore_VoteUpsertKeepsOmittedFields(t *testing.T) {
	s := seeded(t)
	s.UpsertVoteIfNewer("r1", domain.Vote{ID: "v1", Title: "Budget", Status: domain.VoteInProgress, StartedAt: t0, LastUpdatedAt: t0})

	res, _ := s.UpsertVoteIfNewer("r1", domain.Vote{ID: "v1", Status: domain.VoteEnded, EndedAt: t2, LastUpdatedAt: t2})
	if res != Applied {
		t.Fatalf("status change: %v", res)
	}

	snap, _ := s.Get("r1")
	v, _ := snap.Vote("v1")
	if v.Title != "Budget" || !v.StartedAt.Equal(t0) {
		t.Fatalf("omitted fields blanked: %+v", v)
	}
	if v.Status != domain.VoteEnded || !v.EndedAt.Equal(t2) {
		t.Fatalf("present fields not applied: %+v", v)
	}

	s.UpsertVoteIfNewer("r1", domain.Vote{ID: "v1", Title: "Budget 2025", LastUpdatedAt: t2})
	snap, _ = s.Get("r1")
	if v, _ := snap.Vote("v1"); v.Title != "Budget 2025" || v.Status != domain.VoteEnded {
		t.Fatalf("title-only upsert: %+v", v)
	}
}

func TestStore_UpdateRoomIfNewer(t *testing.T) {
	s := seeded(t)

	if res := s.UpdateRoomIfNewer("r1", func(r *domain.Room) { r.Name = "Board" }, t1); res != Applied {
		t.Fatalf("room update: %v", res)
	}
	if res := s.UpdateRoomIfNewer("r1", func(r *domain.Room) { r.Name = "Old" }, t0); res != Rejected {
		t.Fatalf("stale room update: %v", res)
	}
	snap, _ := s.Get("r1")
	if snap.Room.Name != "Board" || snap.Room.ID != "r1" {
		t.Fatalf("unexpected room: %+v", snap.Room)
	}
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()
	s.Open("r1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.AddOrUpdateParticipant("r1", domain.Participant{ID: "p", Name: "x"})
			s.RemoveParticipantIfNewer("r1", "p", timestamp.None())
		}
	}()

	for i := 0; i < 200; i++ {
		snap, _ := s.Get("r1")
		if len(snap.Participants) > 1 {
			t.Fatalf("torn snapshot: %+v", snap.Participants)
		}
	}
	wg.Wait()
}
