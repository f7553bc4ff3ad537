package session

import (
	"slices"

	"github.com/MegaGrindStone/roomchat/internal/models"
)

// State is everything a front end needs to draw the chat. It is owned by a Session and only changes
// through Session methods.
type State struct {
	// Rooms is the room list, newest first.
	Rooms []models.Room
	// CurrentRoom is the id of the selected room, empty when none is selected.
	CurrentRoom string
	// Messages is the history of the current room followed by any messages sent in this session.
	Messages []Entry
	// Streaming is set while a reply stream is open.
	Streaming bool
	// Alert is the last request failure, shown to the user until the next action.
	Alert string
}

// Entry is a displayed message.
type Entry struct {
	Message models.Message
	// Pending marks the placeholder assistant message while its reply is being streamed.
	Pending bool
	// Failed marks a placeholder whose content was replaced by an error text.
	Failed bool
	// Notice is an error appended after partial content.
	Notice string
}

func (s State) clone() State {
	s.Rooms = slices.Clone(s.Rooms)
	s.Messages = slices.Clone(s.Messages)
	return s
}

// RoomTitle returns the title of the room with the given id.
func (s State) RoomTitle(roomID string) (string, bool) {
	idx := slices.IndexFunc(s.Rooms, func(r models.Room) bool { return r.ID == roomID })
	if idx == -1 {
		return "", false
	}
	return s.Rooms[idx].Title, true
}
