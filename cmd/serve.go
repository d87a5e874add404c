package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/actura/internal/server"
	"github.com/audiolibrelab/actura/internal/watch"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the Actura web server to control recording over HTTP.
This replaces the overlay's start/stop/save commands for any local client.

With --watch the meeting watcher runs alongside the server; when
watch.auto_record is enabled it starts and stops recordings on its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		withWatch, _ := cmd.Flags().GetBool("watch")
		if port == 0 {
			port = cfg.Server.Port
		}

		svc, err := newService()
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)

		srv := server.New(svc, port)
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})

		if withWatch {
			w := watch.New(cfg.Watch.Process, cfg.Watch.Interval, nil, svc.HandleWatchEvent)
			g.Go(func() error {
				return w.Run(gctx)
			})
		}

		err = g.Wait()

		// Finalize any recording still running before exiting
		svc.StopRecording()
		if _, werr := svc.WaitForRecording(context.Background()); werr != nil {
			slog.Error("Recording did not finish cleanly", "error", werr)
		}

		slog.Info("Actura web server stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port for the web server (default from server.port)")
	serveCmd.Flags().Bool("watch", false, "also watch for the meeting application")
}
