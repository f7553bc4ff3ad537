package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/roomchat/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newTUICmd(a *app) *cobra.Command {
	var exportDir string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal chat UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(filepath.Dir(a.cfg.LogFile), 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
			logFile, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer logFile.Close()
			a.logger = a.newLogger(logFile)

			s, err := a.session()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			p := tea.NewProgram(tui.New(ctx, s, exportDir, a.logger), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running program: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&exportDir, "export-dir", "o", ".", "Directory exports are written to")
	return cmd
}
