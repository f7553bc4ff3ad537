package handlers

import (
	"context"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/roomchat"
	"github.com/MegaGrindStone/roomchat/internal/format"
	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// Responder produces the assistant reply for a room. It accepts a context and the room history, returning
// an iterator that yields reply fragments and potential errors.
type Responder interface {
	Reply(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Store defines the interface for managing room and message persistence. Implementations return
// models.ErrRoomNotFound when an operation targets a room that does not exist.
type Store interface {
	Rooms(ctx context.Context) ([]models.Room, error)
	Room(ctx context.Context, roomID string) (models.Room, error)
	AddRoom(ctx context.Context, room models.Room) (models.Room, error)
	UpdateRoom(ctx context.Context, room models.Room) error
	DeleteRoom(ctx context.Context, roomID string) error

	Messages(ctx context.Context, roomID string) ([]models.Message, error)
	AddMessage(ctx context.Context, roomID string, message models.Message) (string, error)
}

// Main serves the room, message, stream and export endpoints consumed by the chat client, plus a
// read-only HTML home page.
type Main struct {
	templates *template.Template
	markdown  goldmark.Markdown

	responder Responder
	store     Store

	logger *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided Responder and Store implementations. It parses
// the HTML templates from the embedded filesystem.
func NewMain(responder Responder, store Store, logger *slog.Logger) (Main, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"formatContent": func(s string) template.HTML {
			// format.HTML escapes every text segment.
			return template.HTML(format.HTML(s)) //nolint:gosec
		},
		"clock": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("15:04")
		},
	}).ParseFS(roomchat.TemplateFS, "templates/*.html")
	if err != nil {
		return Main{}, err
	}

	return Main{
		templates: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(
				highlighting.NewHighlighting(highlighting.WithStyle("github")),
			),
		),
		responder: responder,
		store:     store,
		logger:    logger.With(slog.String("module", "handlers")),
	}, nil
}

// Router builds the HTTP handler with every route registered.
func (m Main) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), m.logRequests(), cors.Default())

	r.GET("/", m.HandleHome)

	r.GET("/rooms", m.HandleRooms)
	r.POST("/rooms", m.HandleCreateRoom)
	r.PUT("/rooms/:id", m.HandleUpdateRoom)
	r.DELETE("/rooms/:id", m.HandleDeleteRoom)

	r.GET("/rooms/:id/messages", m.HandleMessages)
	r.POST("/rooms/:id/messages", m.HandleAddMessage)
	r.GET("/rooms/:id/messages-stream", m.HandleStream)

	r.GET("/rooms/:id/export/html", m.HandleExportHTML)
	r.GET("/rooms/:id/export/manual", m.HandleExportManual)

	return r
}

func (m Main) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.logger.Info("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}
