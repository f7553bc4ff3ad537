package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/tmaxmax/go-sse"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// HandleMessages lists the messages of a room. An unknown room has no messages.
// GET /rooms/:id/messages
func (m Main) HandleMessages(c *gin.Context) {
	roomID := c.Param("id")

	msgs, err := m.store.Messages(c.Request.Context(), roomID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// HandleAddMessage stores the user's prompt. The assistant reply is produced by the room's stream.
// POST /rooms/:id/messages
func (m Main) HandleAddMessage(c *gin.Context) {
	roomID := c.Param("id")

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		m.logger.Debug("Invalid add message request", slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "prompt is required"})
		return
	}

	um := models.Message{
		Role:      models.RoleUser,
		Content:   req.Prompt,
		CreatedAt: time.Now(),
	}
	_, err := m.store.AddMessage(c.Request.Context(), roomID, um)
	if errors.Is(err, models.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		m.logger.Error("Failed to add user message",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

// HandleStream streams the assistant reply to the room history as server-sent events. Every event
// carries a JSON payload: {"text": ...} for each fragment, {"error": ...} when the reply fails, and
// {"text": "", "done": true} once the reply is complete and stored. A client that disconnects early
// cancels the reply and nothing is stored.
// GET /rooms/:id/messages-stream
func (m Main) HandleStream(c *gin.Context) {
	roomID := c.Param("id")
	ctx := c.Request.Context()

	sess, err := sse.Upgrade(c.Writer, c.Request)
	if err != nil {
		m.logger.Error("Failed to upgrade to event stream",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}
	// Headers go out now, so clients see the stream open before the first fragment.
	if err := sess.Flush(); err != nil {
		m.logger.Debug("Client went away", slog.String("roomID", roomID), slog.String(errLoggerKey, err.Error()))
		return
	}

	if _, err := m.store.Room(ctx, roomID); err != nil {
		msg := "internal server error"
		if errors.Is(err, models.ErrRoomNotFound) {
			msg = "room not found"
		} else {
			m.logger.Error("Failed to get room",
				slog.String("roomID", roomID),
				slog.String(errLoggerKey, err.Error()))
		}
		_ = m.sendEvent(sess, models.StreamEvent{Error: msg})
		return
	}

	history, err := m.store.Messages(ctx, roomID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		_ = m.sendEvent(sess, models.StreamEvent{Error: "internal server error"})
		return
	}

	var reply strings.Builder
	for text, err := range m.responder.Reply(ctx, history) {
		if err != nil {
			m.logger.Error("Error from responder",
				slog.String("roomID", roomID),
				slog.String(errLoggerKey, err.Error()))
			_ = m.sendEvent(sess, models.StreamEvent{Error: err.Error()})
			return
		}
		if text == "" {
			continue
		}
		reply.WriteString(text)
		if err := m.sendEvent(sess, models.StreamEvent{Text: text}); err != nil {
			m.logger.Debug("Client went away", slog.String("roomID", roomID), slog.String(errLoggerKey, err.Error()))
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	am := models.Message{
		Role:      models.RoleAssistant,
		Content:   reply.String(),
		CreatedAt: time.Now(),
	}
	// The request context may be cancelled by a client that closes right after the last fragment.
	if _, err := m.store.AddMessage(context.WithoutCancel(ctx), roomID, am); err != nil {
		m.logger.Error("Failed to add assistant message",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		_ = m.sendEvent(sess, models.StreamEvent{Error: "failed to store reply"})
		return
	}

	_ = m.sendEvent(sess, models.StreamEvent{Done: true})
}

func (m Main) sendEvent(sess *sse.Session, ev models.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := &sse.Message{}
	msg.AppendData(string(data))
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}
