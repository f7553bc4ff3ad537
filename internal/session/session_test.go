package session_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/MegaGrindStone/roomchat/internal/client"
	"github.com/MegaGrindStone/roomchat/internal/logging"
	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/MegaGrindStone/roomchat/internal/session"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	rooms    []models.Room
	messages map[string][]models.Message
	err      error

	streams []*fakeStream
	// openedWhileActive is set when OpenStream runs while an earlier stream is still open.
	openedWhileActive bool
	openErr           error
}

type fakeStream struct {
	events chan models.StreamEvent
	errs   chan error

	mu     sync.Mutex
	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{messages: map[string][]models.Message{}}
}

func newSession(b *fakeBackend) *session.Session {
	return session.New(b, logging.Discard())
}

func TestCreateRoomAddsOneEntryOnTop(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)

	require.NoError(t, s.CreateRoom(ctx, "first"))
	before := session.BuildView(s.State()).Rooms

	require.NoError(t, s.CreateRoom(ctx, "  second  "))
	after := session.BuildView(s.State()).Rooms

	require.Len(t, after, len(before)+1)
	require.Equal(t, "second", after[0].Title)
	require.True(t, after[0].Active, "the new room is selected")
	require.Equal(t, before[0].ID, after[1].ID)
	require.False(t, after[1].Active)

	require.ErrorIs(t, s.CreateRoom(ctx, "   "), session.ErrEmptyTitle)
	require.Len(t, session.BuildView(s.State()).Rooms, 2)
}

func TestSelectEmptyRoom(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "empty"))

	v := session.BuildView(s.State())
	require.Empty(t, v.Messages)
	require.True(t, v.SendEnabled)
	require.True(t, v.ExportEnabled)
}

func TestSelectRoomLoadsHistory(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.rooms = []models.Room{{ID: "1", Title: "a"}}
	b.messages["1"] = []models.Message{
		{Role: models.RoleUser, Content: "show `x`"},
		{Role: models.RoleAssistant, Content: "use `x`"},
	}
	s := newSession(b)

	require.NoError(t, s.SelectRoom(ctx, "1"))
	v := session.BuildView(s.State())
	require.Len(t, v.Messages, 2)
	require.Equal(t, "show `x`", v.Messages[0].HTML, "user messages are not formatted")
	require.Equal(t, "use <code>x</code>", v.Messages[1].HTML)
}

func TestStreamFragmentsAccumulate(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))

	require.NoError(t, s.Send(ctx, "hi"))
	v := session.BuildView(s.State())
	require.Len(t, v.Messages, 2)
	require.Equal(t, models.RoleUser, v.Messages[0].Role)
	require.Equal(t, "hi", v.Messages[0].Text())
	require.True(t, v.Messages[1].Streaming)
	require.Empty(t, v.Messages[1].Text())
	require.False(t, v.SendEnabled, "send is disabled while streaming")

	st := s.ActiveStream()
	s.HandleEvent(st, models.StreamEvent{Text: "He"})
	require.Equal(t, "He", session.BuildView(s.State()).Messages[1].Text())
	s.HandleEvent(st, models.StreamEvent{Text: "llo"})
	require.Equal(t, "Hello", session.BuildView(s.State()).Messages[1].Text())

	s.HandleEvent(st, models.StreamEvent{Done: true})
	v = session.BuildView(s.State())
	require.Equal(t, "Hello", v.Messages[1].Text())
	require.False(t, v.Messages[1].Streaming)
	require.True(t, v.SendEnabled)
	require.True(t, b.streams[0].isClosed())
	require.Nil(t, s.ActiveStream())
}

func TestStreamRerendersFromRawBuffer(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))
	require.NoError(t, s.Send(ctx, "code please"))

	st := s.ActiveStream()
	for _, frag := range []string{"a <", "`b", "`\n", "```x```"} {
		s.HandleEvent(st, models.StreamEvent{Text: frag})
	}
	require.Equal(t, "a &lt;<code>b</code><br><pre>x</pre>", session.BuildView(s.State()).Messages[1].HTML)
}

func TestStreamErrorPayload(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))
	require.NoError(t, s.Send(ctx, "hi"))

	st := s.ActiveStream()
	s.HandleEvent(st, models.StreamEvent{Text: "partial"})
	s.HandleEvent(st, models.StreamEvent{Error: "model `exploded`"})

	v := session.BuildView(s.State())
	require.Equal(t, "model `exploded`", v.Messages[1].Text(), "error text replaces content unformatted")
	require.True(t, v.Messages[1].Failed)
	require.True(t, v.SendEnabled)
	require.True(t, b.streams[0].isClosed())
}

func TestStreamConnectionFailure(t *testing.T) {
	tests := []struct {
		name       string
		fragments  []string
		wantText   string
		wantNotice string
		wantFailed bool
	}{
		{
			name:       "before any fragment",
			wantText:   session.ConnectionFailedText,
			wantFailed: true,
		},
		{
			name:       "after partial content",
			fragments:  []string{"Hel"},
			wantText:   "Hel",
			wantNotice: session.ConnectionFailedText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := newFakeBackend()
			s := newSession(b)
			require.NoError(t, s.CreateRoom(ctx, "r"))
			require.NoError(t, s.Send(ctx, "hi"))

			st := s.ActiveStream()
			for _, f := range tt.fragments {
				s.HandleEvent(st, models.StreamEvent{Text: f})
			}
			s.HandleStreamError(st, errors.New("connection reset"))

			v := session.BuildView(s.State())
			require.Equal(t, tt.wantText, v.Messages[1].Text())
			require.Equal(t, tt.wantNotice, v.Messages[1].Notice)
			require.Equal(t, tt.wantFailed, v.Messages[1].Failed)
			require.True(t, v.SendEnabled)
			require.True(t, b.streams[0].isClosed())
		})
	}
}

func TestStreamEndOfFileKeepsContent(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))
	require.NoError(t, s.Send(ctx, "hi"))

	st := s.ActiveStream()
	s.HandleEvent(st, models.StreamEvent{Text: "done already"})
	s.HandleStreamError(st, io.EOF)

	v := session.BuildView(s.State())
	require.Equal(t, "done already", v.Messages[1].Text())
	require.False(t, v.Messages[1].Failed)
	require.Empty(t, v.Messages[1].Notice)
	require.True(t, v.SendEnabled)
}

func TestOpenStreamFailure(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.openErr = errors.New("refused")
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))

	require.Error(t, s.Send(ctx, "hi"))
	v := session.BuildView(s.State())
	require.Equal(t, session.ConnectionFailedText, v.Messages[1].Text())
	require.True(t, v.SendEnabled)
}

func TestNewSendClosesPriorStream(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))

	require.NoError(t, s.Send(ctx, "first"))
	first := s.ActiveStream()
	s.HandleEvent(first, models.StreamEvent{Text: "par"})

	require.NoError(t, s.Send(ctx, "second"))
	require.False(t, b.openedWhileActive, "prior stream must be closed before the next one opens")
	require.True(t, b.streams[0].isClosed())
	require.False(t, b.streams[1].isClosed())

	// Late events of the old stream are ignored.
	s.HandleEvent(first, models.StreamEvent{Text: "tial"})
	v := session.BuildView(s.State())
	require.Len(t, v.Messages, 4)
	require.Equal(t, "par", v.Messages[1].Text())
	require.False(t, v.Messages[1].Streaming)
	require.True(t, v.Messages[3].Streaming)
}

func TestSendOpShowsPromptBeforeSubmitting(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))
	id := s.State().CurrentRoom

	op, err := s.SendOp("hi")
	require.NoError(t, err)
	v := session.BuildView(s.State())
	require.Len(t, v.Messages, 2)
	require.Equal(t, "hi", v.Messages[0].Text())
	require.True(t, v.Messages[1].Streaming)
	require.False(t, v.SendEnabled)
	require.Empty(t, b.messages[id], "nothing is submitted before the op runs")
	require.Empty(t, b.streams)

	apply := op(ctx)
	require.Len(t, b.streams, 1)
	require.Nil(t, s.ActiveStream(), "the stream is attached by apply")

	require.NoError(t, apply())
	require.Same(t, b.streams[0], s.ActiveStream())
}

func TestLateStreamIsClosed(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "other"))
	otherID := s.State().CurrentRoom
	require.NoError(t, s.CreateRoom(ctx, "current"))

	op, err := s.SendOp("hi")
	require.NoError(t, err)
	apply := op(ctx)

	require.NoError(t, s.SelectRoom(ctx, otherID))
	require.NoError(t, apply())

	require.True(t, b.streams[0].isClosed())
	require.Nil(t, s.ActiveStream())
	v := session.BuildView(s.State())
	require.Empty(t, v.Messages)
	require.True(t, v.SendEnabled)
}

func TestLateHistoryIsDropped(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.rooms = []models.Room{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}}
	b.messages["1"] = []models.Message{{Role: models.RoleUser, Content: "from a"}}
	b.messages["2"] = []models.Message{{Role: models.RoleUser, Content: "from b"}}
	s := newSession(b)

	first := s.SelectRoomOp("1")
	second := s.SelectRoomOp("2")
	applyFirst := first(ctx)
	require.NoError(t, second(ctx)())
	require.NoError(t, applyFirst())

	v := session.BuildView(s.State())
	require.Equal(t, "2", s.State().CurrentRoom)
	require.Len(t, v.Messages, 1)
	require.Equal(t, "from b", v.Messages[0].Text())
}

func TestSendWhileHistoryLoads(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.rooms = []models.Room{{ID: "1", Title: "a"}}
	b.messages["1"] = []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}
	s := newSession(b)

	load := s.SelectRoomOp("1")
	send, err := s.SendOp("hi")
	require.NoError(t, err)

	require.NoError(t, load(ctx)())
	require.NoError(t, send(ctx)())
	s.HandleEvent(s.ActiveStream(), models.StreamEvent{Text: "reply"})

	v := session.BuildView(s.State())
	require.Len(t, v.Messages, 4)
	require.Equal(t, "q", v.Messages[0].Text())
	require.Equal(t, "hi", v.Messages[2].Text())
	require.Equal(t, "reply", v.Messages[3].Text())
	require.True(t, v.Messages[3].Streaming)
}

func TestExportOp(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)

	_, err := s.ExportOp(client.ExportHTML, func(client.Export) {})
	require.ErrorIs(t, err, session.ErrNoRoom)

	require.NoError(t, s.CreateRoom(ctx, "r"))
	var saved client.Export
	op, err := s.ExportOp(client.ExportHTML, func(exp client.Export) { saved = exp })
	require.NoError(t, err)
	require.NoError(t, op(ctx)())
	require.Equal(t, "html_1", saved.Filename)

	b.err = errors.New("server down")
	op, err = s.ExportOp(client.ExportManual, func(client.Export) { t.Fatal("save after a failed download") })
	require.NoError(t, err)
	require.Error(t, op(ctx)())
	require.Contains(t, session.BuildView(s.State()).Alert, "Failed to export room")
}

func TestDeleteActiveRoom(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "keep"))
	require.NoError(t, s.CreateRoom(ctx, "drop"))
	dropID := s.State().CurrentRoom
	require.NoError(t, s.Send(ctx, "hi"))

	require.NoError(t, s.DeleteRoom(ctx, dropID))

	v := session.BuildView(s.State())
	require.Empty(t, v.Messages)
	require.False(t, v.SendEnabled)
	require.False(t, v.ExportEnabled)
	require.Len(t, v.Rooms, 1)
	require.True(t, b.streams[0].isClosed())
	require.Nil(t, s.ActiveStream())
}

func TestDeleteOtherRoomKeepsSelection(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "other"))
	otherID := s.State().CurrentRoom
	require.NoError(t, s.CreateRoom(ctx, "current"))
	currentID := s.State().CurrentRoom
	require.NoError(t, s.Send(ctx, "hi"))

	require.NoError(t, s.DeleteRoom(ctx, otherID))
	require.Equal(t, currentID, s.State().CurrentRoom)
	require.NotNil(t, s.ActiveStream())
}

func TestRenameRoomKeepsSelection(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "old"))
	id := s.State().CurrentRoom

	require.ErrorIs(t, s.RenameRoom(ctx, id, ""), session.ErrEmptyTitle)
	require.NoError(t, s.RenameRoom(ctx, id, "new"))

	v := session.BuildView(s.State())
	require.Equal(t, "new", v.Rooms[0].Title)
	require.True(t, v.Rooms[0].Active)
}

func TestRequestFailureRaisesAlert(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))

	b.err = errors.New("server down")
	require.Error(t, s.RenameRoom(ctx, s.State().CurrentRoom, "x"))
	v := session.BuildView(s.State())
	require.Contains(t, v.Alert, "server down")

	require.Error(t, s.Send(ctx, "hi"))
	v = session.BuildView(s.State())
	require.Contains(t, v.Alert, "Failed to send message")
	require.True(t, v.SendEnabled, "a failed submission re-enables sending")

	b.err = nil
	require.NoError(t, s.Refresh(ctx))
	s.ClearAlert()
	require.Empty(t, session.BuildView(s.State()).Alert)
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	s := newSession(newFakeBackend())

	require.ErrorIs(t, s.Send(ctx, "hi"), session.ErrNoRoom)
	require.NoError(t, s.CreateRoom(ctx, "r"))
	require.ErrorIs(t, s.Send(ctx, " \n "), session.ErrEmptyPrompt)

	_, err := newSession(newFakeBackend()).Export(ctx, client.ExportHTML)
	require.ErrorIs(t, err, session.ErrNoRoom)
}

func TestReceive(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := newSession(b)
	require.NoError(t, s.CreateRoom(ctx, "r"))
	require.NoError(t, s.Send(ctx, "hi"))

	fs := b.streams[0]
	go func() {
		fs.events <- models.StreamEvent{Text: "He"}
		fs.events <- models.StreamEvent{Text: "llo"}
		fs.events <- models.StreamEvent{Done: true}
	}()

	open := true
	for open {
		var err error
		open, err = s.Receive(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, "Hello", session.BuildView(s.State()).Messages[1].Text())

	open, err := s.Receive(ctx)
	require.NoError(t, err)
	require.False(t, open)
}

func (b *fakeBackend) Rooms(context.Context) ([]models.Room, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.rooms, nil
}

func (b *fakeBackend) CreateRoom(_ context.Context, title string) (models.Room, error) {
	if b.err != nil {
		return models.Room{}, b.err
	}
	r := models.Room{ID: strconv.Itoa(len(b.rooms) + 1), Title: title}
	b.rooms = append(b.rooms, r)
	return r, nil
}

func (b *fakeBackend) RenameRoom(_ context.Context, roomID, title string) error {
	if b.err != nil {
		return b.err
	}
	for i := range b.rooms {
		if b.rooms[i].ID == roomID {
			b.rooms[i].Title = title
			return nil
		}
	}
	return client.ErrNotFound
}

func (b *fakeBackend) DeleteRoom(_ context.Context, roomID string) error {
	if b.err != nil {
		return b.err
	}
	for i := range b.rooms {
		if b.rooms[i].ID == roomID {
			b.rooms = append(b.rooms[:i], b.rooms[i+1:]...)
			break
		}
	}
	delete(b.messages, roomID)
	return nil
}

func (b *fakeBackend) Messages(_ context.Context, roomID string) ([]models.Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.messages[roomID], nil
}

func (b *fakeBackend) AddMessage(_ context.Context, roomID, prompt string) error {
	if b.err != nil {
		return b.err
	}
	b.messages[roomID] = append(b.messages[roomID], models.Message{Role: models.RoleUser, Content: prompt})
	return nil
}

func (b *fakeBackend) OpenStream(context.Context, string) (session.Stream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	for _, st := range b.streams {
		if !st.isClosed() {
			b.openedWhileActive = true
		}
	}
	st := &fakeStream{events: make(chan models.StreamEvent), errs: make(chan error)}
	b.streams = append(b.streams, st)
	return st, nil
}

func (b *fakeBackend) Export(_ context.Context, roomID string, f client.ExportFormat) (client.Export, error) {
	if b.err != nil {
		return client.Export{}, b.err
	}
	return client.Export{Filename: string(f) + "_" + roomID}, nil
}

func (f *fakeStream) Next(ctx context.Context) (models.StreamEvent, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case err := <-f.errs:
		return models.StreamEvent{}, err
	case <-ctx.Done():
		return models.StreamEvent{}, ctx.Err()
	}
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
