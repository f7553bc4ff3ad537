package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the Store interface using a BoltDB backend. Rooms live in a single bucket keyed by
// their big-endian sequence number, so iteration yields creation order. Each room's messages live in a
// bucket of their own.
type BoltDB struct {
	db *bolt.DB
}

var roomsBucket = []byte("rooms")

// NewBoltDB opens (or creates, with 0600 permissions) the database file at path and makes sure the rooms
// bucket exists.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roomsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create rooms bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close closes the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(roomID string) []byte {
	return []byte(fmt.Sprintf("room-%s", roomID))
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func roomKey(roomID string) ([]byte, error) {
	n, err := strconv.ParseUint(roomID, 10, 64)
	if err != nil {
		return nil, models.ErrRoomNotFound
	}
	return seqKey(n), nil
}

// Rooms retrieves all rooms in creation order.
func (b BoltDB) Rooms(context.Context) ([]models.Room, error) {
	rooms := []models.Room{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(roomsBucket).ForEach(func(_, v []byte) error {
			var room models.Room
			if err := json.Unmarshal(v, &room); err != nil {
				return fmt.Errorf("failed to unmarshal room: %w", err)
			}
			rooms = append(rooms, room)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// Room retrieves a single room.
func (b BoltDB) Room(_ context.Context, roomID string) (models.Room, error) {
	key, err := roomKey(roomID)
	if err != nil {
		return models.Room{}, err
	}

	var room models.Room
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(roomsBucket).Get(key)
		if v == nil {
			return models.ErrRoomNotFound
		}
		return json.Unmarshal(v, &room)
	})
	return room, err
}

// AddRoom stores a new room under the next sequence number and creates its message bucket. An empty
// title is replaced by a numbered default title.
func (b BoltDB) AddRoom(_ context.Context, room models.Room) (models.Room, error) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(roomsBucket)

		seq, err := rb.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		room.ID = strconv.FormatUint(seq, 10)
		if room.Title == "" {
			room.Title = defaultRoomTitle(int(seq))
		}
		if room.CreatedAt.IsZero() {
			room.CreatedAt = time.Now()
		}

		if _, err := tx.CreateBucketIfNotExists(messageBucketName(room.ID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("failed to marshal room: %w", err)
		}
		return rb.Put(seqKey(seq), v)
	})
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// UpdateRoom replaces the title of an existing room.
func (b BoltDB) UpdateRoom(_ context.Context, room models.Room) error {
	key, err := roomKey(room.ID)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(roomsBucket)

		v := rb.Get(key)
		if v == nil {
			return models.ErrRoomNotFound
		}
		var stored models.Room
		if err := json.Unmarshal(v, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}
		stored.Title = room.Title

		v, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal room: %w", err)
		}
		return rb.Put(key, v)
	})
}

// DeleteRoom removes a room and its message bucket. Deleting an unknown room is not an error.
func (b BoltDB) DeleteRoom(_ context.Context, roomID string) error {
	key, err := roomKey(roomID)
	if err != nil {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(roomsBucket).Delete(key); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		err := tx.DeleteBucket(messageBucketName(roomID))
		if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to delete message bucket: %w", err)
		}
		return nil
	})
}

// Messages retrieves the messages of a room in insertion order. An unknown room has no messages.
func (b BoltDB) Messages(_ context.Context, roomID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := b.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(messageBucketName(roomID))
		if mb == nil {
			return nil
		}

		return mb.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage appends a message to a room's bucket and returns its id.
func (b BoltDB) AddMessage(_ context.Context, roomID string, message models.Message) (string, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(messageBucketName(roomID))
		if mb == nil {
			return models.ErrRoomNotFound
		}

		seq, err := mb.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return mb.Put(seqKey(seq), v)
	})
	if err != nil {
		return "", err
	}
	return message.ID, nil
}
