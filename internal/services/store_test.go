package services_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/roomchat/internal/handlers"
	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/MegaGrindStone/roomchat/internal/services"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) handlers.Store
	}{
		{
			name: "memory",
			open: func(*testing.T) handlers.Store { return services.NewMemory() },
		},
		{
			name: "bolt",
			open: func(t *testing.T) handlers.Store {
				db, err := services.NewBoltDB(filepath.Join(t.TempDir(), "store.db"))
				require.NoError(t, err)
				t.Cleanup(func() { _ = db.Close() })
				return db
			},
		},
	}

	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			t.Run("rooms", func(t *testing.T) { testRooms(t, st.open(t)) })
			t.Run("messages", func(t *testing.T) { testMessages(t, st.open(t)) })
		})
	}
}

func testRooms(t *testing.T, s handlers.Store) {
	ctx := context.Background()

	rooms, err := s.Rooms(ctx)
	require.NoError(t, err)
	require.Empty(t, rooms)

	var created []models.Room
	for _, title := range []string{"first", "", "third"} {
		r, err := s.AddRoom(ctx, models.Room{Title: title})
		require.NoError(t, err)
		require.NotEmpty(t, r.ID)
		require.False(t, r.CreatedAt.IsZero())
		created = append(created, r)
	}
	require.Equal(t, "New chat 2", created[1].Title)

	rooms, err = s.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	for i := range created {
		require.Equal(t, created[i].ID, rooms[i].ID, "rooms are listed in creation order")
	}

	require.NoError(t, s.UpdateRoom(ctx, models.Room{ID: created[0].ID, Title: "renamed"}))
	r, err := s.Room(ctx, created[0].ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", r.Title)

	require.ErrorIs(t, s.UpdateRoom(ctx, models.Room{ID: "404", Title: "x"}), models.ErrRoomNotFound)
	_, err = s.Room(ctx, "not-a-room")
	require.ErrorIs(t, err, models.ErrRoomNotFound)

	require.NoError(t, s.DeleteRoom(ctx, created[1].ID))
	require.NoError(t, s.DeleteRoom(ctx, created[1].ID))
	rooms, err = s.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
}

func testMessages(t *testing.T, s handlers.Store) {
	ctx := context.Background()

	room, err := s.AddRoom(ctx, models.Room{Title: "chat"})
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)

	for i, content := range []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "eleven"} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		id, err := s.AddMessage(ctx, room.ID, models.Message{Role: role, Content: content})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	msgs, err = s.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 11)
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Equal(t, "eleven", msgs[10].Content)

	_, err = s.AddMessage(ctx, "999", models.Message{Role: models.RoleUser, Content: "x"})
	require.ErrorIs(t, err, models.ErrRoomNotFound)

	require.NoError(t, s.DeleteRoom(ctx, room.ID))
	msgs, err = s.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
