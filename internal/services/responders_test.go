package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MegaGrindStone/roomchat/internal/logging"
	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/MegaGrindStone/roomchat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)


func collect(t *testing.T, seq iter.Seq2[string, error]) (string, error) {
	t.Helper()

	var sb strings.Builder
	for text, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

var history = []models.Message{
	{Role: models.RoleUser, Content: "hi"},
	{Role: models.RoleAssistant, Content: "hello"},
	{Role: models.RoleUser, Content: "how are you?"},
}

func TestAnthropicReply(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		System   string `json:"system"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"Fine\"}}\n\n")
		fmt.Fprint(w, "event: ping\ndata: {}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\", thanks\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {}\n\n")
	}))
	defer srv.Close()

	a := services.NewAnthropic("secret", srv.URL+"/v1/", "claude", "be kind", 256, logging.Discard())
	text, err := collect(t, a.Reply(context.Background(), history))

	require.NoError(t, err)
	require.Equal(t, "Fine, thanks", text)
	require.Equal(t, "claude", got.Model)
	require.Equal(t, "be kind", got.System)
	require.True(t, got.Stream)
	require.Len(t, got.Messages, 3)
	require.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropicErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "error event",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"par\"}}\n\n")
				fmt.Fprint(w, "event: error\ndata: {\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
			},
			wantErr: "overloaded_error: Overloaded",
		},
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
			},
			wantErr: "status 401: invalid x-api-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			a := services.NewAnthropic("k", srv.URL, "claude", "", 16, logging.Discard())
			_, err := collect(t, a.Reply(context.Background(), history))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIReply(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"", "Fine", ", thanks"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenAI("k", srv.URL+"/v1", "gpt", "be kind", logging.Discard())
	text, err := collect(t, o.Reply(context.Background(), history))

	require.NoError(t, err)
	require.Equal(t, "Fine, thanks", text)
	require.Equal(t, "gpt", got.Model)
	require.Len(t, got.Messages, 4)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "be kind", got.Messages[0].Content)
}

func TestOllamaReply(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, c := range []string{"Fine", ", thanks", ""} {
			fmt.Fprintf(w, "{\"model\":\"llama\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":%t}\n", c, c == "")
		}
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama", "", logging.Discard())
	require.NoError(t, err)
	text, err := collect(t, o.Reply(context.Background(), history))

	require.NoError(t, err)
	require.Equal(t, "Fine, thanks", text)
	require.Equal(t, "llama", got.Model)
	require.Len(t, got.Messages, 3)
}

func TestOllamaStopsWhenConsumerStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, c := range []string{"a", "b", "c"} {
			fmt.Fprintf(w, "{\"message\":{\"role\":\"assistant\",\"content\":%q}}\n", c)
		}
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama", "", logging.Discard())
	require.NoError(t, err)

	var frags []string
	for text, err := range o.Reply(context.Background(), history) {
		require.NoError(t, err)
		frags = append(frags, text)
		break
	}
	require.Equal(t, []string{"a"}, frags)
}
