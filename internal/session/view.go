package session

import (
	"html"
	"strings"

	"github.com/MegaGrindStone/roomchat/internal/format"
	"github.com/MegaGrindStone/roomchat/internal/models"
)

// View is a renderer-agnostic picture of a State: what the room list, the message pane and the controls
// should show. Front ends draw a View and never read State directly.
type View struct {
	Rooms    []RoomItem
	Messages []MessageItem

	SendEnabled   bool
	ExportEnabled bool
	Alert         string
}

// RoomItem is one entry of the room list.
type RoomItem struct {
	ID     string
	Title  string
	Active bool
}

// MessageItem is one displayed message.
type MessageItem struct {
	Role models.Role
	// Raw is the unformatted content.
	Raw string
	// Segments is the content after the formatting pass. User messages and error texts are not
	// formatted; they only have their newlines turned into breaks.
	Segments []format.Segment
	// HTML is Segments rendered as escaped HTML.
	HTML string
	// Notice is an error shown after the content.
	Notice string
	// Time is the creation time as HH:MM.
	Time string

	Streaming bool
	Failed    bool
}

// Text returns the displayed content without formatting.
func (m MessageItem) Text() string {
	return format.Plain(m.Segments)
}

// BuildView computes the view of a state. The formatting pass runs over every message's raw content on
// each call, so a streaming placeholder is always rendered from its full accumulated text.
func BuildView(s State) View {
	v := View{
		SendEnabled:   s.CurrentRoom != "" && !s.Streaming,
		ExportEnabled: s.CurrentRoom != "",
		Alert:         s.Alert,
	}

	for _, r := range s.Rooms {
		v.Rooms = append(v.Rooms, RoomItem{ID: r.ID, Title: r.Title, Active: r.ID == s.CurrentRoom})
	}

	for _, e := range s.Messages {
		item := MessageItem{
			Role:      e.Message.Role,
			Raw:       e.Message.Content,
			Notice:    e.Notice,
			Streaming: e.Pending,
			Failed:    e.Failed,
		}
		if !e.Message.CreatedAt.IsZero() {
			item.Time = e.Message.CreatedAt.Local().Format("15:04")
		}

		if e.Message.Role == models.RoleAssistant && !e.Failed {
			item.Segments = format.Parse(e.Message.Content)
			item.HTML = format.HTML(e.Message.Content)
		} else {
			item.Segments = plainSegments(e.Message.Content)
			item.HTML = strings.ReplaceAll(html.EscapeString(e.Message.Content), "\n", "<br>")
		}
		v.Messages = append(v.Messages, item)
	}

	return v
}

func plainSegments(s string) []format.Segment {
	var segs []format.Segment
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			segs = append(segs, format.Segment{Kind: format.KindBreak})
		}
		if line != "" {
			segs = append(segs, format.Segment{Kind: format.KindText, Text: line})
		}
	}
	return segs
}
