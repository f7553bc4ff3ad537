package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Stream is an open push-stream of reply fragments for one room. Events are decoded by a single reader
// goroutine and handed out through Next. A Stream must be closed once the caller is done with it, even
// after Next returned io.EOF.
type Stream struct {
	events chan streamItem
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}

	logger *slog.Logger
}

type streamItem struct {
	ev  models.StreamEvent
	err error
}

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("stream closed")

// OpenStream opens the push-stream of a room. It returns once the server accepted the connection.
func (c Client) OpenStream(ctx context.Context, roomID string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL.String()+roomPath(roomID)+"/messages-stream", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stream for room %s: %w", roomID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("failed to open stream for room %s: %w", roomID,
			&StatusError{Method: http.MethodGet, Path: roomPath(roomID) + "/messages-stream", StatusCode: resp.StatusCode})
	}

	s := &Stream{
		events: make(chan streamItem),
		cancel: cancel,
		closed: make(chan struct{}),
		logger: c.logger.With(slog.String("room", roomID)),
	}
	go s.read(resp.Body)

	return s, nil
}

func (s *Stream) read(body io.ReadCloser) {
	defer close(s.events)
	defer body.Close()

	for ev, err := range sse.Read(body, nil) {
		if err != nil {
			s.deliver(streamItem{err: fmt.Errorf("error reading stream: %w", err)})
			return
		}

		var payload models.StreamEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			s.logger.Warn("Skipping undecodable stream event",
				slog.String("data", ev.Data),
				slog.String("err", err.Error()))
			continue
		}
		if !s.deliver(streamItem{ev: payload}) {
			return
		}
		if payload.Terminal() {
			return
		}
	}
}

func (s *Stream) deliver(it streamItem) bool {
	select {
	case s.events <- it:
		return true
	case <-s.closed:
		return false
	}
}

// Next blocks until the next event arrives. It returns io.EOF when the server ended the stream without
// a terminal event, and ErrStreamClosed once the stream has been closed locally.
func (s *Stream) Next(ctx context.Context) (models.StreamEvent, error) {
	select {
	case <-s.closed:
		return models.StreamEvent{}, ErrStreamClosed
	default:
	}

	select {
	case it, ok := <-s.events:
		if !ok {
			return models.StreamEvent{}, io.EOF
		}
		return it.ev, it.err
	case <-s.closed:
		return models.StreamEvent{}, ErrStreamClosed
	case <-ctx.Done():
		return models.StreamEvent{}, ctx.Err()
	}
}

// Close releases the connection. It is safe to call more than once and from any goroutine.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		s.logger.Debug("Stream closed")
	})
	return nil
}
