// Package service owns the room views: one reconciler and one event source
// per open room, seeded and refreshed from the room API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/room-sync/internal/deferred"
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/event"
	"github.com/cwrk-planet/room-sync/internal/notify"
	"github.com/cwrk-planet/room-sync/internal/reconcile"
	"github.com/cwrk-planet/room-sync/internal/snapshot"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

// ErrViewClosed reports a room view closed while an operation on it was in
// flight. It matches domain.ErrRoomNotFound.
var ErrViewClosed = fmt.Errorf("room view closed: %w", domain.ErrRoomNotFound)

type Fetcher interface {
	FetchSnapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error)
}

type EventSource interface {
	Run(ctx context.Context, handle func(event.Event)) error
}

// SourceFactory builds the event source of a room; connected is called on
// every connection state change.
type SourceFactory func(roomID string, connected func(up bool)) (EventSource, error)

type Metrics interface {
	reconcile.Observer
	Evicted(roomID, reason string)
	SourceConnected(roomID string, up bool)
	Refreshed(roomID string, err error)
	Forget(roomID string)
}

type Options struct {
	Fetcher  Fetcher
	Sources  SourceFactory
	Store    *snapshot.Store
	Notifier notify.Emitter
	Metrics  Metrics
	Logger   *slog.Logger

	DeferredCapacity int
	DeferredMaxAge   time.Duration

	OnVoteAction func(roomID, voteID string)
	// OnClose runs after a room view is closed, e.g. to drop its subscribers.
	OnClose func(roomID string)
}

type RoomStatus struct {
	RoomID     string `json:"roomId"`
	Generation uint64 `json:"generation"`
	Pending    int    `json:"pending"`
	Connected  bool   `json:"connected"`
}

type view struct {
	rec    *reconcile.Reconciler
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	connected bool
}

func (v *view) setConnected(up bool) {
	v.mu.Lock()
	v.connected = up
	v.mu.Unlock()
}

func (v *view) isConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

type SyncService struct {
	opts Options
	log  *slog.Logger

	mu    sync.RWMutex
	views map[string]*view
}

func NewSyncService(opts Options) (*SyncService, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("sync service: nil fetcher")
	}
	if opts.Sources == nil {
		return nil, errors.New("sync service: nil source factory")
	}
	if opts.Store == nil {
		opts.Store = snapshot.NewStore()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &SyncService{
		opts:  opts,
		log:   logger.Component(opts.Logger, "sync"),
		views: make(map[string]*view),
	}, nil
}

// Open starts a room view: full fetch, then the event stream. A failed
// initial fetch is logged and leaves an empty snapshot that a later Refresh
// can fill; the stream runs regardless. Closing the view while Open is still
// fetching cancels the fetch and Open returns ErrViewClosed.
func (s *SyncService) Open(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if _, ok := s.views[roomID]; ok {
		s.mu.Unlock()
		return nil
	}

	m := s.opts.Metrics
	queue := deferred.New(deferred.Options{
		Capacity: s.opts.DeferredCapacity,
		MaxAge:   s.opts.DeferredMaxAge,
		Logger:   s.opts.Logger.With(slog.String("room", roomID)),
		OnEvict:  func(reason string, _ deferred.Entry) { m.Evicted(roomID, reason) },
	})
	runCtx, cancel := context.WithCancel(context.Background())
	v := &view{
		rec: reconcile.New(roomID, reconcile.Options{
			Store:        s.opts.Store,
			Queue:        queue,
			Notifier:     s.opts.Notifier,
			Observer:     m,
			Logger:       s.opts.Logger,
			OnVoteAction: s.opts.OnVoteAction,
		}),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	src, err := s.opts.Sources(roomID, func(up bool) {
		v.setConnected(up)
		m.SourceConnected(roomID, up)
	})
	if err != nil {
		s.mu.Unlock()
		cancel()
		v.rec.Close()
		return fmt.Errorf("open room %s: %w", roomID, err)
	}
	s.views[roomID] = v
	s.mu.Unlock()

	fetchCtx, stopFetch := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(runCtx, stopFetch)
	if _, err := s.refresh(fetchCtx, roomID, v); err != nil && runCtx.Err() == nil {
		s.log.Error("service.Open.refresh:", slog.String("room", roomID), slog.Any("err", err))
	}
	stopOnClose()
	stopFetch()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[roomID] != v {
		close(v.done)
		return fmt.Errorf("open room %s: %w", roomID, ErrViewClosed)
	}
	go func() {
		defer close(v.done)
		err := src.Run(runCtx, func(e event.Event) { v.rec.HandleEvent(e) })
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("service.Open.source:", slog.String("room", roomID), slog.Any("err", err))
		}
	}()

	s.log.Info("room view opened", slog.String("room", roomID))
	return nil
}

// Refresh refetches the room and replaces its snapshot, discarding deferred events.
func (s *SyncService) Refresh(ctx context.Context, roomID string) (*domain.RoomSnapshot, error) {
	v, ok := s.view(roomID)
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	return s.refresh(ctx, roomID, v)
}

func (s *SyncService) refresh(ctx context.Context, roomID string, v *view) (*domain.RoomSnapshot, error) {
	snap, err := s.opts.Fetcher.FetchSnapshot(ctx, roomID)
	s.opts.Metrics.Refreshed(roomID, err)
	if err != nil {
		return nil, fmt.Errorf("refresh room %s: %w", roomID, err)
	}
	next := v.rec.Replace(snap)
	if next == nil {
		return nil, fmt.Errorf("refresh room %s: %w", roomID, ErrViewClosed)
	}
	return next, nil
}

// Snapshot returns the current snapshot of an open room.
func (s *SyncService) Snapshot(roomID string) (*domain.RoomSnapshot, bool) {
	v, ok := s.view(roomID)
	if !ok {
		return nil, false
	}
	return v.rec.Snapshot()
}

func (s *SyncService) Rooms() []RoomStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoomStatus, 0, len(s.views))
	for id, v := range s.views {
		st := RoomStatus{RoomID: id, Pending: v.rec.Pending(), Connected: v.isConnected()}
		if snap, ok := v.rec.Snapshot(); ok {
			st.Generation = snap.Generation
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Close stops the room's event stream and drops its snapshot and deferred events.
func (s *SyncService) Close(roomID string) {
	s.mu.Lock()
	v, ok := s.views[roomID]
	delete(s.views, roomID)
	s.mu.Unlock()
	if !ok {
		return
	}

	v.cancel()
	<-v.done
	v.rec.Close()
	s.opts.Metrics.Forget(roomID)
	if s.opts.OnClose != nil {
		s.opts.OnClose(roomID)
	}
	s.log.Info("room view closed", slog.String("room", roomID))
}

func (s *SyncService) Shutdown() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Close(id)
	}
}

func (s *SyncService) view(roomID string) (*view, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[roomID]
	return v, ok
}

type nopMetrics struct{}

func (nopMetrics) Observe(string, string, reconcile.Outcome) {}
func (nopMetrics) QueueDepth(string, int)                    {}
func (nopMetrics) Flushed(string, int)                       {}
func (nopMetrics) Evicted(string, string)                    {}
func (nopMetrics) SourceConnected(string, bool)              {}
func (nopMetrics) Refreshed(string, error)                   {}
func (nopMetrics) Forget(string)                             {}
