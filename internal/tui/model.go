// Package tui is the terminal front end of roomchat. It drives a session.Session from the bubbletea
// event loop. Session state only changes inside Update; backend round trips run as commands whose
// results come back to Update as messages, and so does every event of the open reply stream.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/roomchat/internal/client"
	"github.com/MegaGrindStone/roomchat/internal/format"
	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/MegaGrindStone/roomchat/internal/session"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type mode int

const (
	modeChat mode = iota
	modeCreate
	modeRename
	modeConfirmDelete
)

type focus int

const (
	focusInput focus = iota
	focusRooms
)

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx       context.Context
	session   *session.Session
	exportDir string

	input    textinput.Model
	viewport viewport.Model

	mode        mode
	focus       focus
	cursor      int
	target      string
	showSidebar bool
	width       int
	height      int
	status      string

	styles styles
	logger *slog.Logger
}

type refreshMsg struct{}

type opKind int

const (
	opRefresh opKind = iota
	opSelect
	opCreate
	opRename
	opDelete
	opSend
)

// opMsg carries the result of a session.Op back to Update.
type opMsg struct {
	kind  opKind
	apply session.Apply
}

type exportMsg struct {
	apply session.Apply
	path  string
	err   error
}

// streamMsg carries one result of Stream.Next back to Update.
type streamMsg struct {
	stream session.Stream
	event  models.StreamEvent
	err    error
}

const chatPlaceholder = "Type a message and press enter"

// New creates the model. Exports are written to exportDir.
func New(ctx context.Context, sess *session.Session, exportDir string, logger *slog.Logger) Model {
	ti := textinput.New()
	ti.Placeholder = chatPlaceholder
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	vp := viewport.New(80, 20)

	return Model{
		ctx:         ctx,
		session:     sess,
		exportDir:   exportDir,
		input:       ti,
		viewport:    vp,
		showSidebar: true,
		styles:      defaultStyles(),
		logger:      logger.With(slog.String("module", "tui")),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg { return refreshMsg{} })
}

func (m Model) run(kind opKind, op session.Op) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opMsg{kind: kind, apply: op(ctx)}
	}
}

func waitForStreamEvent(ctx context.Context, st session.Stream) tea.Cmd {
	if st == nil {
		return nil
	}
	return func() tea.Msg {
		ev, err := st.Next(ctx)
		return streamMsg{stream: st, event: ev, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshContent()
		return m, nil
	case refreshMsg:
		return m, m.run(opRefresh, m.session.RefreshOp())
	case opMsg:
		return m.applyOp(msg)
	case exportMsg:
		m.applyExport(msg)
		return m, nil
	case streamMsg:
		if msg.err != nil {
			m.session.HandleStreamError(msg.stream, msg.err)
		} else {
			m.session.HandleEvent(msg.stream, msg.event)
		}
		m.refreshContent()
		if st := m.session.ActiveStream(); st != nil && st == msg.stream {
			return m, waitForStreamEvent(m.ctx, st)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) applyOp(msg opMsg) (tea.Model, tea.Cmd) {
	before := m.session.ActiveStream()
	err := msg.apply()
	if msg.kind == opDelete && err == nil {
		m.status = "Room deleted"
	}
	m.syncCursor()
	m.refreshContent()

	// Only a stream this send attached gets a reader; any other one already has one.
	if st := m.session.ActiveStream(); msg.kind == opSend && st != nil && st != before {
		return m, waitForStreamEvent(m.ctx, st)
	}
	return m, nil
}

func (m *Model) applyExport(msg exportMsg) {
	m.status = ""
	if err := msg.apply(); err != nil {
		return
	}
	if msg.err != nil {
		m.logger.Error("Failed to save export", slog.String("err", msg.err.Error()))
		m.status = msg.err.Error()
		return
	}
	m.status = "Saved " + msg.path
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.session.Close()
		return m, tea.Quit
	}

	switch m.mode {
	case modeConfirmDelete:
		return m.handleConfirmDelete(msg)
	case modeCreate, modeRename:
		return m.handleTitlePrompt(msg)
	}

	switch msg.String() {
	case "ctrl+b":
		m.showSidebar = !m.showSidebar
		if !m.showSidebar {
			m.setFocus(focusInput)
		}
		m.resize()
		m.refreshContent()
		return m, nil
	case "tab":
		if m.focus == focusInput && m.showSidebar {
			m.setFocus(focusRooms)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil
	case "ctrl+n":
		m.enterTitlePrompt(modeCreate, "", "New room title")
		return m, textinput.Blink
	case "ctrl+r":
		id, title, ok := m.targetRoom()
		if !ok {
			m.status = "Select a room to rename"
			return m, nil
		}
		m.target = id
		m.enterTitlePrompt(modeRename, title, "Room title")
		return m, textinput.Blink
	case "ctrl+d":
		id, title, ok := m.targetRoom()
		if !ok {
			m.status = "Select a room to delete"
			return m, nil
		}
		m.target = id
		m.mode = modeConfirmDelete
		m.status = fmt.Sprintf("Delete room %q? (y/n)", title)
		return m, nil
	case "ctrl+e":
		return m, m.export(client.ExportHTML)
	case "ctrl+t":
		return m, m.export(client.ExportManual)
	case "esc":
		m.session.ClearAlert()
		m.status = ""
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusRooms {
		return m.handleRoomKey(msg)
	}

	if msg.Type == tea.KeyEnter {
		return m.send()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// targetRoom is the room under the cursor while the rooms pane has focus, and the selected room
// otherwise.
func (m Model) targetRoom() (id, title string, ok bool) {
	st := m.session.State()
	if m.focus == focusRooms && m.cursor < len(st.Rooms) {
		r := st.Rooms[m.cursor]
		return r.ID, r.Title, true
	}
	title, ok = st.RoomTitle(st.CurrentRoom)
	return st.CurrentRoom, title, ok
}

func (m Model) handleRoomKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rooms := m.session.State().Rooms
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(rooms)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(rooms) {
			m.status = ""
			op := m.session.SelectRoomOp(rooms[m.cursor].ID)
			m.setFocus(focusInput)
			m.refreshContent()
			return m, m.run(opSelect, op)
		}
	}
	return m, nil
}

func (m Model) handleConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = modeChat
	m.status = ""
	if msg.String() != "y" && msg.String() != "Y" {
		return m, nil
	}
	return m, m.run(opDelete, m.session.DeleteRoomOp(m.target))
}

func (m Model) handleTitlePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.leaveTitlePrompt()
		return m, nil
	case tea.KeyEnter:
		title := m.input.Value()
		kind := opCreate
		var (
			op  session.Op
			err error
		)
		if m.mode == modeCreate {
			op, err = m.session.CreateRoomOp(title)
		} else {
			kind = opRename
			op, err = m.session.RenameRoomOp(m.target, title)
		}
		m.leaveTitlePrompt()
		if err != nil {
			if errors.Is(err, session.ErrEmptyTitle) {
				m.status = "Title cannot be empty"
			}
			return m, nil
		}
		return m, m.run(kind, op)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send shows the prompt right away; submitting it and opening the stream happen in the returned command.
func (m Model) send() (tea.Model, tea.Cmd) {
	if !session.BuildView(m.session.State()).SendEnabled {
		if m.session.State().CurrentRoom == "" {
			m.status = "Select or create a room first"
		}
		return m, nil
	}

	op, err := m.session.SendOp(m.input.Value())
	if err != nil {
		return m, nil
	}
	m.status = ""
	m.input.Reset()
	m.refreshContent()
	return m, m.run(opSend, op)
}

func (m *Model) export(f client.ExportFormat) tea.Cmd {
	dir := m.exportDir
	var (
		path    string
		saveErr error
	)
	op, err := m.session.ExportOp(f, func(exp client.Export) {
		path, saveErr = exp.Save(dir)
	})
	if err != nil {
		m.status = "Select a room to export"
		return nil
	}
	m.status = "Exporting…"

	ctx := m.ctx
	return func() tea.Msg {
		apply := op(ctx)
		return exportMsg{apply: apply, path: path, err: saveErr}
	}
}

func (m *Model) enterTitlePrompt(md mode, value, placeholder string) {
	m.mode = md
	m.setFocus(focusInput)
	m.input.Reset()
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Placeholder = placeholder
	m.input.Prompt = "title> "
}

func (m *Model) leaveTitlePrompt() {
	m.mode = modeChat
	m.input.Reset()
	m.input.Placeholder = chatPlaceholder
	m.input.Prompt = "> "
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

// syncCursor moves the room cursor to the selected room, or keeps it in range when none is selected.
func (m *Model) syncCursor() {
	st := m.session.State()
	for i, r := range st.Rooms {
		if r.ID == st.CurrentRoom {
			m.cursor = i
			return
		}
	}
	m.cursor = max(0, min(m.cursor, len(st.Rooms)-1))
}

func (m *Model) mainWidth() int {
	w := m.width
	if w == 0 {
		w = 80
	}
	if m.showSidebar {
		w -= sidebarWidth + 4
	}
	return max(w, 20)
}

func (m *Model) resize() {
	m.viewport.Width = m.mainWidth()
	// header, alert or status, input and help lines
	m.viewport.Height = max(m.height-4, 3)
	m.input.Width = max(m.mainWidth()-len(m.input.Prompt)-1, 10)
}

func (m *Model) refreshContent() {
	m.viewport.SetContent(m.renderMessages(session.BuildView(m.session.State())))
	m.viewport.GotoBottom()
}

func (m Model) renderMessages(v session.View) string {
	if !v.ExportEnabled {
		return m.styles.empty.Render("Select a room, or press ctrl+n to create one.")
	}
	if len(v.Messages) == 0 {
		return m.styles.empty.Render("No messages yet.")
	}

	width := m.mainWidth()
	blocks := make([]string, 0, len(v.Messages))
	for _, item := range v.Messages {
		label := m.styles.assistant.Render("Assistant")
		if item.Role == models.RoleUser {
			label = m.styles.user.Render("You")
		}
		if item.Time != "" {
			label += " " + m.styles.timestamp.Render(item.Time)
		}

		var body string
		switch {
		case item.Failed:
			body = m.styles.failed.Render(item.Raw)
		case item.Role == models.RoleAssistant:
			body = strings.TrimSuffix(format.ANSI(item.Raw, m.styles.content), "\n")
		default:
			body = item.Raw
		}
		if item.Streaming {
			body += "▍"
		}
		if item.Notice != "" {
			body += "\n" + m.styles.failed.Render(item.Notice)
		}

		blocks = append(blocks, label+"\n"+lipgloss.NewStyle().Width(width).Render(body))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderRooms(v session.View) string {
	var sb strings.Builder
	sb.WriteString(m.styles.sidebarTitle.Render("Rooms"))
	sb.WriteByte('\n')
	if len(v.Rooms) == 0 {
		sb.WriteString(m.styles.room.Render("No rooms yet"))
	}

	for i, r := range v.Rooms {
		prefix := "  "
		if r.Active {
			prefix = "● "
		}
		line := prefix + truncate(r.Title, sidebarWidth-4)

		style := m.styles.room
		switch {
		case m.focus == focusRooms && i == m.cursor:
			style = m.styles.cursorRoom
		case r.Active:
			style = m.styles.activeRoom
		}
		sb.WriteString(style.Render(line))
		sb.WriteByte('\n')
	}

	h := m.height - 2
	if h < 1 {
		h = 1
	}
	return m.styles.sidebar.Height(h).Render(strings.TrimSuffix(sb.String(), "\n"))
}

func (m Model) View() string {
	v := session.BuildView(m.session.State())

	title := "roomchat"
	st := m.session.State()
	if t, ok := st.RoomTitle(st.CurrentRoom); ok {
		title = t
	}
	header := m.styles.header.Render(truncate(title, m.mainWidth()-2))

	var line string
	switch {
	case v.Alert != "":
		line = m.styles.alert.Render(v.Alert)
	case m.status != "":
		line = m.styles.status.Render(m.status)
	case !v.SendEnabled && v.ExportEnabled:
		line = m.styles.status.Render("Receiving reply…")
	}

	help := "enter send • tab rooms • ctrl+n new • ctrl+r rename • ctrl+d delete • ctrl+e/ctrl+t export • ctrl+b sidebar • ctrl+c quit"
	if m.mode == modeCreate || m.mode == modeRename {
		help = "enter save • esc cancel"
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		line,
		m.input.View(),
		m.styles.help.Render(truncate(help, m.mainWidth())),
	)
	if !m.showSidebar {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderRooms(v), " ", main)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
