package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docchat/internal/server"
)

var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload and chat API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(a.svc, server.Options{
			Addr:           cfg.Server.Addr,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			CorsOrigins:    cfg.Server.CorsOrigins,
			Logger:         a.log,
		})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides server.addr)")
}
