// Package session holds the chat client's state: the room list, the selected room, its messages and the
// single open reply stream. A Session is not safe for concurrent use; it is owned by the front end's
// event loop. Front ends that must not block that loop use the Op variants of each action.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/client"
	"github.com/MegaGrindStone/roomchat/internal/models"
)

// Session is the chat controller. Every user action is a method; the resulting state is read with State
// and drawn with BuildView.
type Session struct {
	backend Backend

	state State

	stream      Stream
	buf         strings.Builder
	placeholder int

	// selection and reply count room switches and sends, so late results can be told apart.
	selection int
	reply     int

	now    func() time.Time
	logger *slog.Logger
}

var (
	// ErrNoRoom is returned by actions that need a selected room.
	ErrNoRoom = errors.New("no room selected")
	// ErrEmptyPrompt is returned by Send for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrEmptyTitle is returned by CreateRoom and RenameRoom for a blank title.
	ErrEmptyTitle = errors.New("title is empty")
)

// ConnectionFailedText replaces or follows the placeholder content when the stream connection fails.
const ConnectionFailedText = "stream connection failed"

// New creates a Session with no room selected.
func New(backend Backend, logger *slog.Logger) *Session {
	return &Session{
		backend:     backend,
		placeholder: -1,
		now:         time.Now,
		logger:      logger.With(slog.String("module", "session")),
	}
}

// State returns a copy of the current state.
func (s *Session) State() State {
	return s.state.clone()
}

// ActiveStream returns the open reply stream, or nil.
func (s *Session) ActiveStream() Stream {
	return s.stream
}

// ClearAlert dismisses the current alert.
func (s *Session) ClearAlert() {
	s.state.Alert = ""
}

// fail logs a request failure and surfaces it as the alert.
func (s *Session) fail(msg string, err error) error {
	s.logger.Error(msg, slog.String("err", err.Error()))
	s.state.Alert = fmt.Sprintf("%s: %v", msg, err)
	return err
}

// Op is the network half of a Session action. It only talks to the backend, so a front end may run it
// off its event loop. The Apply it returns must run on the goroutine that owns the Session.
type Op func(ctx context.Context) Apply

// Apply records the outcome of an Op in the session state.
type Apply func() error

func run(ctx context.Context, op Op, err error) error {
	if err != nil {
		return err
	}
	return op(ctx)()
}

// Refresh reloads the room list.
func (s *Session) Refresh(ctx context.Context) error {
	return s.RefreshOp()(ctx)()
}

// RefreshOp prepares a reload of the room list.
func (s *Session) RefreshOp() Op {
	return func(ctx context.Context) Apply {
		rooms, err := s.backend.Rooms(ctx)
		return func() error { return s.applyRooms(rooms, err) }
	}
}

func (s *Session) applyRooms(rooms []models.Room, err error) error {
	if err != nil {
		return s.fail("Failed to load rooms", err)
	}
	s.state.Rooms = models.NewestFirst(rooms)
	return nil
}

// CreateRoom creates a room, refreshes the list and selects the new room, which is the first entry of
// the refreshed list.
func (s *Session) CreateRoom(ctx context.Context, title string) error {
	op, err := s.CreateRoomOp(title)
	return run(ctx, op, err)
}

// CreateRoomOp validates the title and prepares CreateRoom.
func (s *Session) CreateRoomOp(title string) (Op, error) {
	s.ClearAlert()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	return func(ctx context.Context) Apply {
		if _, err := s.backend.CreateRoom(ctx, title); err != nil {
			return func() error { return s.fail("Failed to create room", err) }
		}
		rooms, err := s.backend.Rooms(ctx)
		if err != nil {
			return func() error { return s.applyRooms(nil, err) }
		}
		rooms = models.NewestFirst(rooms)
		if len(rooms) == 0 {
			return func() error { return s.applyRooms(rooms, nil) }
		}
		msgs, msgErr := s.backend.Messages(ctx, rooms[0].ID)
		return func() error {
			s.state.Rooms = rooms
			s.enterRoom(rooms[0].ID)
			return s.applyHistory(s.selection, msgs, msgErr)
		}
	}, nil
}

// RenameRoom changes the title of a room and refreshes the list. The selection is kept.
func (s *Session) RenameRoom(ctx context.Context, roomID, title string) error {
	op, err := s.RenameRoomOp(roomID, title)
	return run(ctx, op, err)
}

// RenameRoomOp validates the title and prepares RenameRoom.
func (s *Session) RenameRoomOp(roomID, title string) (Op, error) {
	s.ClearAlert()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	return func(ctx context.Context) Apply {
		if err := s.backend.RenameRoom(ctx, roomID, title); err != nil {
			return func() error { return s.fail("Failed to rename room", err) }
		}
		rooms, err := s.backend.Rooms(ctx)
		return func() error { return s.applyRooms(rooms, err) }
	}, nil
}

// DeleteRoom deletes a room and refreshes the list. Deleting the selected room also clears the message
// view and releases the open stream.
func (s *Session) DeleteRoom(ctx context.Context, roomID string) error {
	return s.DeleteRoomOp(roomID)(ctx)()
}

// DeleteRoomOp prepares DeleteRoom.
func (s *Session) DeleteRoomOp(roomID string) Op {
	s.ClearAlert()

	return func(ctx context.Context) Apply {
		if err := s.backend.DeleteRoom(ctx, roomID); err != nil {
			return func() error { return s.fail("Failed to delete room", err) }
		}
		rooms, err := s.backend.Rooms(ctx)
		return func() error {
			if s.state.CurrentRoom == roomID {
				s.enterRoom("")
			}
			return s.applyRooms(rooms, err)
		}
	}
}

// SelectRoom navigates to a room: the open stream is closed and the room's history is loaded.
func (s *Session) SelectRoom(ctx context.Context, roomID string) error {
	return s.SelectRoomOp(roomID)(ctx)()
}

// SelectRoomOp switches to the room right away, with an empty message list, and prepares the load of its
// history. A history that arrives after another room was selected is dropped.
func (s *Session) SelectRoomOp(roomID string) Op {
	s.ClearAlert()
	s.enterRoom(roomID)
	selection := s.selection

	return func(ctx context.Context) Apply {
		msgs, err := s.backend.Messages(ctx, roomID)
		return func() error { return s.applyHistory(selection, msgs, err) }
	}
}

func (s *Session) enterRoom(roomID string) {
	s.closeStream()
	s.selection++
	s.state.CurrentRoom = roomID
	s.state.Messages = nil
}

// applyHistory puts the loaded history in front of anything sent since the room was entered.
func (s *Session) applyHistory(selection int, msgs []models.Message, err error) error {
	if selection != s.selection {
		return nil
	}
	if err != nil {
		return s.fail("Failed to load messages", err)
	}

	entries := make([]Entry, len(msgs), len(msgs)+len(s.state.Messages))
	for i, m := range msgs {
		entries[i] = Entry{Message: m}
	}
	s.state.Messages = append(entries, s.state.Messages...)
	if s.placeholder >= 0 {
		s.placeholder += len(msgs)
	}
	return nil
}

// Send shows the prompt as a user message, submits it, adds an empty assistant placeholder and opens the
// reply stream of the current room. Any stream still open is closed first. Fragments are applied with
// HandleEvent and HandleStreamError, or with Receive.
func (s *Session) Send(ctx context.Context, prompt string) error {
	op, err := s.SendOp(prompt)
	return run(ctx, op, err)
}

// SendOp does the local half of Send right away: the prompt is shown, the placeholder is added and
// sending is disabled. The returned Op submits the prompt and opens the stream. A stream that opens
// after the reply was abandoned, by a room switch or a newer send, is closed when applied.
func (s *Session) SendOp(prompt string) (Op, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	roomID := s.state.CurrentRoom
	if roomID == "" {
		return nil, ErrNoRoom
	}
	s.ClearAlert()
	s.closeStream()

	s.state.Messages = append(s.state.Messages, Entry{Message: models.Message{
		Role:      models.RoleUser,
		Content:   prompt,
		CreatedAt: s.now(),
	}})
	s.state.Streaming = true

	s.buf.Reset()
	s.state.Messages = append(s.state.Messages, Entry{
		Message: models.Message{Role: models.RoleAssistant, CreatedAt: s.now()},
		Pending: true,
	})
	s.placeholder = len(s.state.Messages) - 1
	s.reply++
	reply := s.reply

	return func(ctx context.Context) Apply {
		if err := s.backend.AddMessage(ctx, roomID, prompt); err != nil {
			return func() error {
				if reply != s.reply {
					return nil
				}
				s.dropPlaceholder()
				return s.fail("Failed to send message", err)
			}
		}

		st, err := s.backend.OpenStream(ctx, roomID)
		return func() error {
			if reply != s.reply {
				if st != nil {
					_ = st.Close()
				}
				return nil
			}
			if err != nil {
				s.logger.Error("Failed to open stream", slog.String("room", roomID), slog.String("err", err.Error()))
				s.failPlaceholder()
				s.finish()
				return err
			}
			s.stream = st
			return nil
		}
	}, nil
}

// HandleEvent applies one stream event. Events from a stream other than the active one are ignored.
func (s *Session) HandleEvent(st Stream, ev models.StreamEvent) {
	if st == nil || st != s.stream || s.placeholder < 0 {
		return
	}

	entry := &s.state.Messages[s.placeholder]
	if ev.Error != "" {
		s.logger.Warn("Stream reported an error", slog.String("err", ev.Error))
		entry.Message.Content = ev.Error
		entry.Failed = true
		s.finish()
		return
	}

	if ev.Text != "" {
		s.buf.WriteString(ev.Text)
		entry.Message.Content = s.buf.String()
	}
	if ev.Done {
		s.finish()
	}
}

// HandleStreamError applies a failure to read from a stream. io.EOF is a normal end of stream. Errors from
// a stream other than the active one, including the error a closed stream returns, are ignored.
func (s *Session) HandleStreamError(st Stream, err error) {
	if st == nil || st != s.stream || s.placeholder < 0 {
		return
	}
	if errors.Is(err, io.EOF) {
		s.finish()
		return
	}

	s.logger.Error("Stream failed", slog.String("err", err.Error()))
	s.failPlaceholder()
	s.finish()
}

// Receive blocks for the next event of the active stream and applies it. It reports whether the stream
// is still open afterwards.
func (s *Session) Receive(ctx context.Context) (bool, error) {
	st := s.stream
	if st == nil {
		return false, nil
	}

	ev, err := st.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		s.HandleStreamError(st, err)
		return s.stream != nil, nil
	}
	s.HandleEvent(st, ev)
	return s.stream != nil, nil
}

// Export downloads the transcript of the current room.
func (s *Session) Export(ctx context.Context, f client.ExportFormat) (client.Export, error) {
	s.ClearAlert()
	if s.state.CurrentRoom == "" {
		return client.Export{}, ErrNoRoom
	}

	exp, err := s.backend.Export(ctx, s.state.CurrentRoom, f)
	if err != nil {
		return client.Export{}, s.fail("Failed to export room", err)
	}
	return exp, nil
}

// ExportOp prepares an export of the current room. The Op downloads the transcript and hands it to save,
// so save runs off the event loop too.
func (s *Session) ExportOp(f client.ExportFormat, save func(client.Export)) (Op, error) {
	s.ClearAlert()
	roomID := s.state.CurrentRoom
	if roomID == "" {
		return nil, ErrNoRoom
	}

	return func(ctx context.Context) Apply {
		exp, err := s.backend.Export(ctx, roomID, f)
		if err != nil {
			return func() error { return s.fail("Failed to export room", err) }
		}
		save(exp)
		return func() error { return nil }
	}, nil
}

// Close releases the open stream.
func (s *Session) Close() {
	s.closeStream()
}

// dropPlaceholder removes the placeholder of a prompt the backend refused.
func (s *Session) dropPlaceholder() {
	if s.placeholder >= 0 && s.placeholder < len(s.state.Messages) {
		s.state.Messages = slices.Delete(s.state.Messages, s.placeholder, s.placeholder+1)
	}
	s.placeholder = -1
	s.state.Streaming = false
}

func (s *Session) failPlaceholder() {
	if s.placeholder < 0 {
		return
	}
	entry := &s.state.Messages[s.placeholder]
	if entry.Message.Content == "" {
		entry.Message.Content = ConnectionFailedText
		entry.Failed = true
		return
	}
	entry.Notice = ConnectionFailedText
}

// finish ends the current reply: the stream is closed, the placeholder becomes a regular message and
// sending is enabled again.
func (s *Session) finish() {
	if s.placeholder >= 0 && s.placeholder < len(s.state.Messages) {
		s.state.Messages[s.placeholder].Pending = false
	}
	s.placeholder = -1
	s.reply++
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.state.Streaming = false
}

func (s *Session) closeStream() {
	if s.stream == nil && s.placeholder < 0 {
		return
	}
	s.finish()
}
