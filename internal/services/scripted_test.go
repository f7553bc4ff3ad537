package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/roomchat/internal/services"
	"github.com/stretchr/testify/require"
)

func TestScriptedReply(t *testing.T) {
	s := services.NewScripted("héllo", 0)

	var frags []string
	for frag, err := range s.Reply(context.Background(), nil) {
		require.NoError(t, err)
		frags = append(frags, frag)
	}
	require.Equal(t, []string{"h", "é", "l", "l", "o"}, frags)
}

func TestScriptedDefaultText(t *testing.T) {
	var sb strings.Builder
	for frag, err := range services.NewScripted("", 0).Reply(context.Background(), nil) {
		require.NoError(t, err)
		sb.WriteString(frag)
	}
	require.Equal(t, services.DefaultScriptedReply, sb.String())
}

func TestScriptedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := services.NewScripted("abcdef", 5*time.Millisecond)

	var n int
	for _, err := range s.Reply(ctx, nil) {
		require.NoError(t, err)
		n++
		if n == 2 {
			cancel()
		}
	}
	require.Equal(t, 2, n)
}
