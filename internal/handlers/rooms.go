package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/gin-gonic/gin"
)

type titleRequest struct {
	Title string `json:"title"`
}

type updateRoomResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Title  string `json:"title"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandleRooms lists all rooms in creation order.
// GET /rooms
func (m Main) HandleRooms(c *gin.Context) {
	rooms, err := m.store.Rooms(c.Request.Context())
	if err != nil {
		m.logger.Error("Failed to list rooms", slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

// HandleCreateRoom creates a room. A missing body or title yields a room with a numbered default title.
// POST /rooms
func (m Main) HandleCreateRoom(c *gin.Context) {
	var req titleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			m.logger.Debug("Invalid create room request", slog.String(errLoggerKey, err.Error()))
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	room, err := m.store.AddRoom(c.Request.Context(), models.Room{Title: strings.TrimSpace(req.Title)})
	if err != nil {
		m.logger.Error("Failed to create room", slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	m.logger.Info("Room created", slog.String("roomID", room.ID), slog.String("title", room.Title))
	c.JSON(http.StatusOK, room)
}

// HandleUpdateRoom renames a room.
// PUT /rooms/:id
func (m Main) HandleUpdateRoom(c *gin.Context) {
	roomID := c.Param("id")

	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		m.logger.Debug("Invalid update room request", slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}

	err := m.store.UpdateRoom(c.Request.Context(), models.Room{ID: roomID, Title: title})
	if errors.Is(err, models.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		m.logger.Error("Failed to update room",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, updateRoomResponse{Status: "ok", ID: roomID, Title: title})
}

// HandleDeleteRoom deletes a room and its messages. Deleting an unknown room succeeds.
// DELETE /rooms/:id
func (m Main) HandleDeleteRoom(c *gin.Context) {
	roomID := c.Param("id")

	if err := m.store.DeleteRoom(c.Request.Context(), roomID); err != nil {
		m.logger.Error("Failed to delete room",
			slog.String("roomID", roomID),
			slog.String(errLoggerKey, err.Error()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{Status: "deleted"})
}
