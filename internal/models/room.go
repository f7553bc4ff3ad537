package models

import (
	"encoding/json"
	"slices"
	"time"
)

// Room represents a named chat conversation container. Rooms are created, renamed and deleted through the
// room endpoints of the chat server.
type Room struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Message represents a stored chat message. Once stored, a message is never modified.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message generated by the assistant.
	RoleAssistant Role = "assistant"
)

// UnmarshalJSON accepts both "content" and "content_ja" as the content key, the latter being what the
// first version of the chat server emitted.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw struct {
		plain
		ContentJA *string `json:"content_ja"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)
	if m.Content == "" && raw.ContentJA != nil {
		m.Content = *raw.ContentJA
	}
	return nil
}

// NewestFirst returns a copy of rooms in reverse creation order. The server lists rooms oldest first.
func NewestFirst(rooms []Room) []Room {
	out := slices.Clone(rooms)
	slices.Reverse(out)
	return out
}
