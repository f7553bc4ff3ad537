package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MegaGrindStone/roomchat/internal/session"
	"github.com/spf13/cobra"
)

const defaultRoomTitle = "New chat"

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [room]",
		Short: "Chat in a room from the command line",
		Long: `Chat in a room, one prompt per line. Without a room argument the newest room is
used, or a new one is created. Lines starting with a slash are commands:
/rooms, /switch <room>, /new <title> and /quit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			defer s.Close()

			roomID := ""
			if len(args) == 1 {
				roomID = args[0]
			}
			return runChat(cmd.Context(), s, roomID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runChat reads prompts from in until EOF or /quit and prints each streamed reply as it arrives.
func runChat(ctx context.Context, s *session.Session, roomID string, in io.Reader, out io.Writer) error {
	if err := enterRoom(ctx, s, roomID); err != nil {
		return err
	}
	printMessages(out, session.BuildView(s.State()).Messages)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, s, line, out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		err := s.Send(ctx, line)
		switch {
		case errors.Is(err, session.ErrEmptyPrompt):
			continue
		case errors.Is(err, session.ErrNoRoom):
			fmt.Fprintln(out, "error:", err)
			continue
		case err != nil && s.State().Alert != "":
			fmt.Fprintln(out, "error:", s.State().Alert)
			continue
		}
		if err := printReply(ctx, s, out); err != nil {
			return err
		}
	}
}

func enterRoom(ctx context.Context, s *session.Session, roomID string) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if roomID != "" {
		return s.SelectRoom(ctx, roomID)
	}
	if rooms := s.State().Rooms; len(rooms) > 0 {
		return s.SelectRoom(ctx, rooms[0].ID)
	}
	return s.CreateRoom(ctx, defaultRoomTitle)
}

// printReply receives the open reply stream and writes each new piece of the reply. An error text that
// replaces the reply is printed on its own line.
func printReply(ctx context.Context, s *session.Session, out io.Writer) error {
	printed := 0
	for {
		open := s.ActiveStream() != nil
		if open {
			var err error
			if open, err = s.Receive(ctx); err != nil {
				return err
			}
		}

		msgs := session.BuildView(s.State()).Messages
		if len(msgs) == 0 {
			return nil
		}
		last := msgs[len(msgs)-1]
		switch {
		case last.Failed:
			fmt.Fprintf(out, "\nerror: %s", last.Raw)
			printed = len(last.Raw)
		case len(last.Raw) > printed:
			fmt.Fprint(out, last.Raw[printed:])
			printed = len(last.Raw)
		}

		if !open {
			if last.Notice != "" {
				fmt.Fprintf(out, "\nerror: %s", last.Notice)
			}
			fmt.Fprintln(out)
			return nil
		}
	}
}

func chatCommand(ctx context.Context, s *session.Session, line string, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/rooms":
		if err := s.Refresh(ctx); err != nil {
			return false, err
		}
		return false, printRooms(out, s.State().Rooms)
	case "/switch":
		if arg == "" {
			return false, fmt.Errorf("usage: /switch <room>")
		}
		if err := s.SelectRoom(ctx, arg); err != nil {
			return false, err
		}
		printMessages(out, session.BuildView(s.State()).Messages)
		return false, nil
	case "/new":
		if arg == "" {
			arg = defaultRoomTitle
		}
		if err := s.CreateRoom(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Created room %s\n", s.State().CurrentRoom)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
}
