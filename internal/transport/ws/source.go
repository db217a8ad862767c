package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/cwrk-planet/room-sync/internal/event"
)

// State is the connection state of an event source. The reconciler never
// sees it; it is reported for logs, metrics and health only.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

type SourceOptions struct {
	// URL of the room event stream; "{id}" is replaced by the room id.
	URL    string
	RoomID string
	Token  string

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// Limiter caps dial attempts, so a stream that connects and drops right
	// away cannot spin. Defaults to one dial per second with a burst of 3.
	Limiter *rate.Limiter

	Dialer  *websocket.Dialer
	Decoder *Decoder
	Logger  *slog.Logger
	OnState func(roomID string, s State)
}

// Source consumes one room's event stream and hands every decoded event to
// a handler, one at a time, from the goroutine running Run.
type Source struct {
	url      *url.URL
	roomID   string
	token    string
	clientID string

	min, max time.Duration
	limiter  *rate.Limiter

	dialer  *websocket.Dialer
	decoder *Decoder
	log     *slog.Logger
	onState func(roomID string, s State)
}

func NewSource(opts SourceOptions) (*Source, error) {
	if opts.RoomID == "" {
		return nil, errors.New("event source: empty room id")
	}
	u, err := url.Parse(strings.ReplaceAll(opts.URL, "{id}", url.PathEscape(opts.RoomID)))
	if err != nil {
		return nil, fmt.Errorf("event source: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("event source: unsupported scheme %q", u.Scheme)
	}

	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Second), 3)
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Decoder == nil {
		opts.Decoder = NewDecoder(opts.Logger)
	}

	return &Source{
		url:      u,
		roomID:   opts.RoomID,
		token:    opts.Token,
		clientID: uuid.NewString(),
		min:      opts.ReconnectMin,
		max:      opts.ReconnectMax,
		limiter:  opts.Limiter,
		dialer:   opts.Dialer,
		decoder:  opts.Decoder,
		log: opts.Logger.With(
			slog.String("component", "event_source"),
			slog.String("room", opts.RoomID),
		),
		onState: opts.OnState,
	}, nil
}

// Run connects and reconnects until ctx is cancelled, then returns ctx.Err().
// A reconnect never touches the snapshot; refreshing is the caller's call.
func (s *Source) Run(ctx context.Context, handle func(event.Event)) error {
	backoff := s.min

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event source: %w", err)
		}

		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err == nil {
			s.setState(StateConnected)
			s.log.Info("event stream connected", slog.String("url", s.url.Redacted()))
			backoff = s.min

			err = s.consume(ctx, conn, handle)
			s.setState(StateDisconnected)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.log.Warn("event stream lost", slog.Any("err", err), slog.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > s.max {
				backoff = s.max
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Source) dial(ctx context.Context) (*websocket.Conn, error) {
	u := *s.url
	q := u.Query()
	q.Set("client_id", s.clientID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (s *Source) consume(ctx context.Context, conn *websocket.Conn, handle func(event.Event)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := s.decoder.Decode(data)
		if err != nil {
			s.log.Warn("frame discarded", slog.Any("err", err), slog.Int("bytes", len(data)))
			continue
		}
		handle(ev)
	}
}

func (s *Source) setState(st State) {
	if s.onState != nil {
		s.onState(s.roomID, st)
	}
}
