package cli

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docchat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat FILE",
	Short: "Analyze a document and chat about it interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		// Console logs would corrupt the terminal UI; the file sink still applies.
		a, err := newApp(ctx, cfg, io.Discard)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := ingestFile(ctx, a.svc, args[0])
		if err != nil {
			return err
		}
		m := tui.New(a.svc, tui.Session{
			ID:            res.SessionID,
			Filename:      res.Filename,
			Summary:       res.Summary,
			SummaryFailed: res.SummaryFailed,
		}, cfg.Limits.EmbedTimeout+cfg.Limits.GenerateTimeout)
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}
