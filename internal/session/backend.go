package session

import (
	"context"

	"github.com/MegaGrindStone/roomchat/internal/client"
	"github.com/MegaGrindStone/roomchat/internal/models"
)

// Backend is the set of round trips a Session makes to the chat server.
type Backend interface {
	Rooms(ctx context.Context) ([]models.Room, error)
	CreateRoom(ctx context.Context, title string) (models.Room, error)
	RenameRoom(ctx context.Context, roomID, title string) error
	DeleteRoom(ctx context.Context, roomID string) error

	Messages(ctx context.Context, roomID string) ([]models.Message, error)
	AddMessage(ctx context.Context, roomID, prompt string) error
	OpenStream(ctx context.Context, roomID string) (Stream, error)

	Export(ctx context.Context, roomID string, f client.ExportFormat) (client.Export, error)
}

// Stream is an open push-stream of reply fragments. Next must be safe to call while Close runs on
// another goroutine.
type Stream interface {
	Next(ctx context.Context) (models.StreamEvent, error)
	Close() error
}

type clientBackend struct {
	client.Client
}

// FromClient adapts a client.Client to the Backend interface.
func FromClient(c client.Client) Backend {
	return clientBackend{Client: c}
}

func (b clientBackend) OpenStream(ctx context.Context, roomID string) (Stream, error) {
	s, err := b.Client.OpenStream(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s, nil
}
