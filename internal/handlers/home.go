package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/gin-gonic/gin"
)

type roomItem struct {
	ID     string
	Title  string
	Active bool
}

type homePageData struct {
	Rooms       []roomItem
	CurrentRoom string
	Messages    []models.Message
}

// HandleHome renders the read-only home page: the room list newest first and, when room_id is given,
// that room's history.
// GET /
func (m Main) HandleHome(c *gin.Context) {
	rooms, err := m.store.Rooms(c.Request.Context())
	if err != nil {
		m.logger.Error("Failed to get rooms", slog.String(errLoggerKey, err.Error()))
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	current := c.Query("room_id")
	data := homePageData{CurrentRoom: current}
	for _, r := range models.NewestFirst(rooms) {
		data.Rooms = append(data.Rooms, roomItem{ID: r.ID, Title: r.Title, Active: r.ID == current})
	}

	if current != "" {
		msgs, err := m.store.Messages(c.Request.Context(), current)
		if err != nil {
			m.logger.Error("Failed to get messages",
				slog.String("roomID", current),
				slog.String(errLoggerKey, err.Error()))
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		data.Messages = msgs
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := m.templates.ExecuteTemplate(c.Writer, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
	}
}
