// Package client talks to the chat server: room and message round trips, transcript export, and the
// per-room push stream of assistant reply fragments.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/models"
)

// Client is a request/response client for the room endpoints of the chat server. It holds no state
// besides its configuration, so a single Client can serve any number of sessions.
type Client struct {
	baseURL        *url.URL
	requestTimeout time.Duration

	httpClient *http.Client

	logger *slog.Logger
}

// ExportFormat selects the transcript document produced by Export.
type ExportFormat string

const (
	// ExportHTML exports the transcript as an HTML document.
	ExportHTML ExportFormat = "html"
	// ExportManual exports the transcript as a plain text record.
	ExportManual ExportFormat = "manual"
)

// Export is a downloaded transcript document.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// StatusError is returned for every non-2xx response. Message carries the server's "error" field when
// the body has one.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is makes errors.Is(err, ErrNotFound) hold for 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// New creates a Client for the server at baseURL. The request timeout bounds every request/response
// round trip. It does not apply to streams, which stay open until closed or ended by the server.
func New(baseURL string, requestTimeout time.Duration, logger *slog.Logger) (Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return Client{}, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Client{}, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	return Client{
		baseURL:        u,
		requestTimeout: requestTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With(slog.String("module", "client")),
	}, nil
}

// Rooms lists the rooms in the order the server keeps them, oldest first.
func (c Client) Rooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.doJSON(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// CreateRoom creates a room with the given title.
func (c Client) CreateRoom(ctx context.Context, title string) (models.Room, error) {
	var room models.Room
	body := struct {
		Title string `json:"title"`
	}{Title: title}
	if err := c.doJSON(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return models.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// RenameRoom changes the title of a room.
func (c Client) RenameRoom(ctx context.Context, roomID, title string) error {
	body := struct {
		Title string `json:"title"`
	}{Title: title}
	if err := c.doJSON(ctx, http.MethodPut, roomPath(roomID), body, nil); err != nil {
		return fmt.Errorf("failed to rename room %s: %w", roomID, err)
	}
	return nil
}

// DeleteRoom deletes a room and its messages.
func (c Client) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, roomPath(roomID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return nil
}

// Messages lists the stored messages of a room in the order they were added.
func (c Client) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.doJSON(ctx, http.MethodGet, roomPath(roomID)+"/messages", nil, &msgs); err != nil {
		return nil, fmt.Errorf("failed to list messages of room %s: %w", roomID, err)
	}
	return msgs, nil
}

// AddMessage submits a user prompt for persistence.
func (c Client) AddMessage(ctx context.Context, roomID, prompt string) error {
	body := struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt}
	if err := c.doJSON(ctx, http.MethodPost, roomPath(roomID)+"/messages", body, nil); err != nil {
		return fmt.Errorf("failed to add message to room %s: %w", roomID, err)
	}
	return nil
}

// Export downloads the transcript of a room. The returned filename is the one suggested by the server,
// or a generated one when the server does not send a Content-Disposition header.
func (c Client) Export(ctx context.Context, roomID string, f ExportFormat) (Export, error) {
	if f != ExportHTML && f != ExportManual {
		return Export{}, fmt.Errorf("unknown export format %q", f)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	path := roomPath(roomID) + "/export/" + string(f)
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Export{}, fmt.Errorf("failed to export room %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Export{}, fmt.Errorf("failed to read export of room %s: %w", roomID, err)
	}

	exp := Export{
		Filename:    exportFilename(roomID, f, time.Now()),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			exp.Filename = name
		}
	}
	return exp, nil
}

func exportFilename(roomID string, f ExportFormat, now time.Time) string {
	if f == ExportManual {
		return fmt.Sprintf("manual_%s_%d.txt", roomID, now.UnixMilli())
	}
	return fmt.Sprintf("chat_%s_%d.html", roomID, now.UnixMilli())
}

func roomPath(roomID string) string {
	return "/rooms/" + url.PathEscape(roomID)
}

func (c Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func (c Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs a request and turns non-2xx responses into a *StatusError. On success the caller owns
// the response body.
func (c Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Request", slog.String("method", method), slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	se := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	var e struct {
		Error string `json:"error"`
	}
	if b, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(b, &e) == nil {
			se.Message = e.Error
		}
	}
	return nil, se
}

// Save writes the document into dir under its filename and returns the written path.
func (e Export) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(e.Filename))
	if err := os.WriteFile(path, e.Body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
