package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/MegaGrindStone/roomchat/internal/client"
	"github.com/MegaGrindStone/roomchat/internal/format"
	"github.com/MegaGrindStone/roomchat/internal/models"
	"github.com/MegaGrindStone/roomchat/internal/session"
	"github.com/spf13/cobra"
)

func newRoomsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage chat rooms",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List rooms, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := a.session()
				if err != nil {
					return err
				}
				if err := s.Refresh(cmd.Context()); err != nil {
					return err
				}
				return printRooms(cmd.OutOrStdout(), s.State().Rooms)
			},
		},
		&cobra.Command{
			Use:   "create <title>",
			Short: "Create a room",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.session()
				if err != nil {
					return err
				}
				if err := s.CreateRoom(cmd.Context(), strings.Join(args, " ")); err != nil {
					return err
				}
				st := s.State()
				title, _ := st.RoomTitle(st.CurrentRoom)
				fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (%s)\n", st.CurrentRoom, title)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <room> <title>",
			Short: "Rename a room",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.session()
				if err != nil {
					return err
				}
				if err := s.RenameRoom(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed room %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <room>",
			Short: "Delete a room and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.session()
				if err != nil {
					return err
				}
				if err := s.DeleteRoom(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted room %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func printRooms(out io.Writer, rooms []models.Room) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCREATED")
	for _, r := range rooms {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Title, created)
	}
	return w.Flush()
}

func newMessagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <room>",
		Short: "Print the history of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session()
			if err != nil {
				return err
			}
			if err := s.SelectRoom(cmd.Context(), args[0]); err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), session.BuildView(s.State()).Messages)
			return nil
		},
	}
}

func printMessages(out io.Writer, items []session.MessageItem) {
	st := format.DefaultStyles()
	for _, item := range items {
		speaker := "Assistant"
		body := format.ANSI(item.Raw, st)
		if item.Role == models.RoleUser || item.Failed {
			body = item.Raw
		}
		if item.Role == models.RoleUser {
			speaker = "You"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", item.Time, speaker, strings.TrimSuffix(body, "\n"))
	}
}

func newExportCmd(a *app) *cobra.Command {
	var f, dir string

	cmd := &cobra.Command{
		Use:   "export <room>",
		Short: "Download the transcript of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			exp, err := c.Export(cmd.Context(), args[0], client.ExportFormat(f))
			if err != nil {
				return err
			}
			path, err := exp.Save(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f, "format", "f", string(client.ExportHTML), "Export format (html or manual)")
	cmd.Flags().StringVarP(&dir, "output", "o", ".", "Directory to write the export to")
	return cmd
}
