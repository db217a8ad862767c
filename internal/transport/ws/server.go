package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/room-sync/internal/auth"
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/pkg/httputil"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

var ErrSlowSubscriber = errors.New("subscriber send buffer full")

type SnapshotReader interface {
	Snapshot(roomID string) (*domain.RoomSnapshot, bool)
}

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Server serves the notification feed. A nil verifier disables token checks.
type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	snapshots SnapshotReader
	verifier  TokenVerifier
	log       *slog.Logger

	pingEvery time.Duration
}

func NewServer(hub *Hub, snapshots SnapshotReader, verifier TokenVerifier, l *slog.Logger) *Server {
	return &Server{
		hub:       hub,
		snapshots: snapshots,
		verifier:  verifier,
		log:       logger.Component(l, "feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// HandleWS serves GET /ws/rooms/{id}/notifications?access_token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		httputil.Error(w, http.StatusBadRequest, "missing room id", nil)
		return
	}

	subject := ""
	if s.verifier != nil {
		claims, err := s.verifier.Verify(strings.TrimSpace(r.URL.Query().Get("access_token")))
		if err != nil {
			httputil.Error(w, http.StatusUnauthorized, err.Error(), nil)
			return
		}
		subject = claims.Subject
	}

	snap, ok := s.snapshots.Snapshot(roomID)
	if !ok {
		httputil.Error(w, http.StatusNotFound, domain.ErrRoomNotFound.Error(), nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Warn("ws upgrade failed", slog.String("room", roomID), slog.Any("err", err))
		return
	}

	c := newWsConn(conn, roomID, subject)
	if err := c.Send(Message{Type: TypeSnapshot, Payload: snap}); err != nil {
		s.log.Warn("ws send initial snapshot failed", slog.String("room", roomID), slog.Any("err", err))
	}
	s.hub.Add(c)
	s.log.Debug("subscriber joined", slog.String("room", roomID), slog.String("conn", c.id), slog.String("sub", subject))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.writeLoop(ctx, c)
	s.readLoop(c)

	s.hub.Remove(c)
	_ = c.Close()
	s.log.Debug("subscriber left", slog.String("room", roomID), slog.String("conn", c.id))
}

// readLoop only drains control frames; the feed is one-way.
func (s *Server) readLoop(c *wsConn) {
	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				_ = c.Close()
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

type wsConn struct {
	conn    *websocket.Conn
	id      string
	roomID  string
	subject string

	out       chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, roomID, subject string) *wsConn {
	return &wsConn{
		conn:    c,
		id:      uuid.NewString(),
		roomID:  roomID,
		subject: subject,
		out:     make(chan Message, 64),
		closed:  make(chan struct{}),
	}
}

// Send queues msg for the write loop and never blocks.
func (c *wsConn) Send(msg Message) error {
	select {
	case <-c.closed:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) RoomID() string { return c.roomID }
