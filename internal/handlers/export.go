package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/gin-gonic/gin"
)

type exportMessage struct {
	Speaker string
	Role    string
	Content template.HTML
	Message models.Message
}

type exportPageData struct {
	Room     models.Room
	Messages []exportMessage
}

func speaker(r models.Role) string {
	if r == models.RoleUser {
		return "User"
	}
	return "Assistant"
}

// HandleExportHTML sends the room transcript as an HTML attachment. Message content is rendered as
// markdown with highlighted code blocks.
// GET /rooms/:id/export/html
func (m Main) HandleExportHTML(c *gin.Context) {
	room, msgs, ok := m.transcript(c)
	if !ok {
		return
	}

	data := exportPageData{Room: room}
	for _, msg := range msgs {
		var buf bytes.Buffer
		if err := m.markdown.Convert([]byte(msg.Content), &buf); err != nil {
			m.logger.Error("Failed to render markdown",
				slog.String("roomID", room.ID),
				slog.String(errLoggerKey, err.Error()))
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		data.Messages = append(data.Messages, exportMessage{
			Speaker: speaker(msg.Role),
			Role:    string(msg.Role),
			// goldmark omits raw HTML unless the unsafe renderer option is set.
			Content: template.HTML(buf.String()), //nolint:gosec
			Message: msg,
		})
	}

	var out bytes.Buffer
	if err := m.templates.ExecuteTemplate(&out, "export.html", data); err != nil {
		m.logger.Error("Failed to execute export template", slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=chat_%s.html", room.ID))
	c.Data(http.StatusOK, "text/html; charset=utf-8", out.Bytes())
}

// HandleExportManual sends the room transcript as a plain text attachment.
// GET /rooms/:id/export/manual
func (m Main) HandleExportManual(c *gin.Context) {
	room, msgs, ok := m.transcript(c)
	if !ok {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### Record of chat room %s (%s)\n\n", room.ID, room.Title)
	for _, msg := range msgs {
		fmt.Fprintf(&sb, "%s: %s\n", speaker(msg.Role), msg.Content)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=manual_%s.txt", room.ID))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(sb.String()))
}

func (m Main) transcript(c *gin.Context) (models.Room, []models.Message, bool) {
	roomID := c.Param("id")

	room, err := m.store.Room(c.Request.Context(), roomID)
	if errors.Is(err, models.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		return models.Room{}, nil, false
	}
	if err != nil {
		m.logger.Error("Failed to get room", slog.String("roomID", roomID), slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return models.Room{}, nil, false
	}

	msgs, err := m.store.Messages(c.Request.Context(), roomID)
	if err != nil {
		m.logger.Error("Failed to get messages", slog.String("roomID", roomID), slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return models.Room{}, nil, false
	}
	return room, msgs, true
}
