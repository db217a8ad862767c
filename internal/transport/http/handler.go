package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/service"
	"github.com/cwrk-planet/room-sync/pkg/httputil"
)

type RoomSyncer interface {
	Snapshot(roomID string) (*domain.RoomSnapshot, bool)
	Refresh(ctx context.Context, roomID string) (*domain.RoomSnapshot, error)
	Rooms() []service.RoomStatus
}

type Handler struct {
	sync RoomSyncer
}

func NewHandler(s RoomSyncer) *Handler {
	return &Handler{sync: s}
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*domain.RoomSnapshot, bool) {
	snap, ok := h.sync.Snapshot(chi.URLParam(r, "id"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, "room not found", nil)
		return nil, false
	}
	return snap, true
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.sync.Rooms())
}

// GET /rooms/{id}/snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if snap, ok := h.snapshot(w, r); ok {
		httputil.OK(w, snap)
	}
}

// GET /rooms/{id}/participants?entered=
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := snap.Participants
	if s := r.URL.Query().Get("entered"); s != "" {
		entered, err := strconv.ParseBool(s)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "entered must be a boolean", nil)
			return
		}
		items = snap.ByPresence(entered)
	}
	if items == nil {
		items = []domain.Participant{}
	}
	httputil.OK(w, ParticipantsResponse{Generation: snap.Generation, Items: items})
}

// GET /rooms/{id}/votes
func (h *Handler) GetVotes(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := snap.Votes
	if items == nil {
		items = []domain.Vote{}
	}
	httputil.OK(w, VotesResponse{Generation: snap.Generation, Items: items})
}

// POST /rooms/{id}/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if c, ok := ClaimsFromCtx(r.Context()); ok {
		slog.Info("manual refresh requested", slog.String("room", roomID), slog.String("sub", c.Subject))
	}
	snap, err := h.sync.Refresh(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			httputil.Error(w, http.StatusNotFound, "room not found", nil)
			return
		}
		slog.Error("handler.Refresh:", slog.String("room", roomID), slog.Any("err", err))
		httputil.Error(w, httputil.StatusFor(err), "refresh failed", map[string]any{"reason": err.Error()})
		return
	}
	httputil.OK(w, RefreshResponse{RoomID: roomID, Generation: snap.Generation})
}
