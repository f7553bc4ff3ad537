package services

import (
	"context"
	"iter"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/models"
)

// Scripted is a Responder that streams a fixed reply one character at a time. It needs no model and is
// the default responder of the server.
type Scripted struct {
	text  string
	delay time.Duration
}

// DefaultScriptedReply is the reply streamed when no text is configured.
const DefaultScriptedReply = "This is a streaming response."

// NewScripted creates a Scripted responder. An empty text falls back to DefaultScriptedReply.
func NewScripted(text string, delay time.Duration) Scripted {
	if text == "" {
		text = DefaultScriptedReply
	}
	return Scripted{text: text, delay: delay}
}

// Reply yields the configured text rune by rune, waiting the configured delay before each rune. It stops
// silently when ctx is cancelled.
func (s Scripted) Reply(ctx context.Context, _ []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var timer *time.Timer
		if s.delay > 0 {
			timer = time.NewTimer(s.delay)
			defer timer.Stop()
		}

		for _, r := range s.text {
			if timer != nil {
				select {
				case <-ctx.Done():
				case <-timer.C:
					timer.Reset(s.delay)
				}
			}
			if ctx.Err() != nil {
				return
			}

			if !yield(string(r), nil) {
				return
			}
		}
	}
}
