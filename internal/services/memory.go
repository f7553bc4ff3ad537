package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/google/uuid"
)

// Memory implements the Store interface in process memory. Everything is lost when the process exits.
type Memory struct {
	mu       sync.Mutex
	seq      int
	rooms    []models.Room
	messages map[string][]models.Message
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{messages: make(map[string][]models.Message)}
}

// Rooms returns all rooms in creation order.
func (m *Memory) Rooms(context.Context) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.rooms), nil
}

// Room returns the room with the given id.
func (m *Memory) Room(_ context.Context, roomID string) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.roomIndex(roomID)
	if idx == -1 {
		return models.Room{}, models.ErrRoomNotFound
	}
	return m.rooms[idx], nil
}

// AddRoom stores a new room under the next sequential id. An empty title is replaced by a numbered
// default title.
func (m *Memory) AddRoom(_ context.Context, room models.Room) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	room.ID = strconv.Itoa(m.seq)
	if room.Title == "" {
		room.Title = defaultRoomTitle(m.seq)
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	m.rooms = append(m.rooms, room)
	m.messages[room.ID] = []models.Message{}
	return room, nil
}

// UpdateRoom replaces the title of an existing room.
func (m *Memory) UpdateRoom(_ context.Context, room models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.roomIndex(room.ID)
	if idx == -1 {
		return models.ErrRoomNotFound
	}
	m.rooms[idx].Title = room.Title
	return nil
}

// DeleteRoom removes a room and its messages. Deleting an unknown room is not an error.
func (m *Memory) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms = slices.DeleteFunc(m.rooms, func(r models.Room) bool { return r.ID == roomID })
	delete(m.messages, roomID)
	return nil
}

// Messages returns the messages of a room in insertion order. An unknown room has no messages.
func (m *Memory) Messages(_ context.Context, roomID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.messages[roomID]), nil
}

// AddMessage appends a message to a room and returns its id.
func (m *Memory) AddMessage(_ context.Context, roomID string, message models.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roomIndex(roomID) == -1 {
		return "", models.ErrRoomNotFound
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	m.messages[roomID] = append(m.messages[roomID], message)
	return message.ID, nil
}

func (m *Memory) roomIndex(roomID string) int {
	return slices.IndexFunc(m.rooms, func(r models.Room) bool { return r.ID == roomID })
}

func defaultRoomTitle(n int) string {
	return fmt.Sprintf("New chat %d", n)
}
