package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MegaGrindStone/roomchat/internal/client"
	"github.com/MegaGrindStone/roomchat/internal/config"
	"github.com/MegaGrindStone/roomchat/internal/logging"
	"github.com/MegaGrindStone/roomchat/internal/session"
	"github.com/spf13/cobra"
)

// app carries what every command needs once the configuration is loaded.
type app struct {
	configPath string
	serverURL  string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "roomchat",
		Short: "Chat with an assistant in rooms",
		Long: `roomchat is a client for a room-based chat server. It lists, creates, renames,
deletes and exports rooms, and streams assistant replies in a terminal UI or a
line-mode chat. The serve command runs a chat server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&a.serverURL, "server-url", "", "Chat server URL")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newRoomsCmd(a),
		newMessagesCmd(a),
		newExportCmd(a),
		newChatCmd(a),
		newTUICmd(a),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, path, err := config.Load(logging.New("info", "text", os.Stderr), a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.UpdateFrom(config.Config{ServerURL: a.serverURL, LogLevel: a.logLevel})

	a.cfg = cfg
	a.logger = a.newLogger(os.Stderr)
	return nil
}

func (a *app) newLogger(out io.Writer) *slog.Logger {
	return logging.New(a.cfg.LogLevel, a.cfg.LogFormat, out)
}

func (a *app) client() (client.Client, error) {
	return client.New(a.cfg.ServerURL, a.cfg.RequestTimeout, a.logger)
}

func (a *app) session() (*session.Session, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return session.New(session.FromClient(c), a.logger), nil
}
