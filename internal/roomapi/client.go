// Package roomapi is the REST client for the room service: the full fetch
// that seeds and refreshes a room snapshot.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/pkg/httputil"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

var ErrUpstream = fmt.Errorf("room api: %w", httputil.ErrUpstream)

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *slog.Logger
	m     mapper
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("room api: empty base url")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("room api: parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	log := logger.Component(opts.Logger, "roomapi")

	return &Client{
		base:  base,
		token: opts.Token,
		http:  opts.HTTPClient,
		log:   log,
		m:     mapper{log: log},
	}, nil
}

func (c *Client) Room(ctx context.Context, roomID string) (domain.Room, error) {
	var dto roomDTO
	if err := c.get(ctx, roomID, "", &dto); err != nil {
		return domain.Room{}, err
	}
	room := c.m.room(dto)
	if room.ID == "" {
		room.ID = roomID
	}
	return room, nil
}

func (c *Client) Participants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	var dto []participantDTO
	if err := c.get(ctx, roomID, "participants", &dto); err != nil {
		return nil, err
	}
	return c.m.participants(dto), nil
}

func (c *Client) Roles(ctx context.Context, roomID string) ([]domain.Role, error) {
	var dto []roleDTO
	if err := c.get(ctx, roomID, "roles", &dto); err != nil {
		return nil, err
	}
	return c.m.roles(dto), nil
}

func (c *Client) Votes(ctx context.Context, roomID string) ([]domain.Vote, error) {
	var dto []voteDTO
	if err := c.get(ctx, roomID, "votes", &dto); err != nil {
		return nil, err
	}
	return c.m.votes(dto), nil
}

// FetchSnapshot performs the full fetch. The four requests run concurrently
// and the first failure cancels the rest.
func (c *Client) FetchSnapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	snap := domain.RoomSnapshot{RoomID: roomID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Room, err = c.Room(gctx, roomID)
		return err
	})
	g.Go(func() (err error) {
		snap.Participants, err = c.Participants(gctx, roomID)
		return err
	})
	g.Go(func() (err error) {
		snap.Roles, err = c.Roles(gctx, roomID)
		return err
	})
	g.Go(func() (err error) {
		snap.Votes, err = c.Votes(gctx, roomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.RoomSnapshot{}, err
	}

	c.log.Debug("room fetched",
		slog.String("room", roomID),
		slog.Int("participants", len(snap.Participants)),
		slog.Int("roles", len(snap.Roles)),
		slog.Int("votes", len(snap.Votes)),
	)
	return snap, nil
}

func (c *Client) get(ctx context.Context, roomID, collection string, dst any) error {
	u := c.base.JoinPath("rooms", roomID)
	if collection != "" {
		u = u.JoinPath(collection)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("room api: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if rid, ok := httputil.FromContext(ctx); ok {
		req.Header.Set(httputil.HeaderRequestID, rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUpstream, u.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUpstream, u.Path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: GET %s: status %d", ErrUpstream, u.Path, resp.StatusCode)
	}

	if err := decodeBody(body, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, u.Path, err)
	}
	return nil
}

// decodeBody accepts both {"data": ...} and a bare JSON value.
func decodeBody(body []byte, dst any) error {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
			return json.Unmarshal(env.Data, dst)
		}
	}
	return json.Unmarshal(body, dst)
}
