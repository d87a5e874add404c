package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/actura/internal/watch"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for a meeting application and report its state",
	Long: `Poll the process list for the meeting application named by watch.process
(case-insensitive substring match) and log when it starts or stops.

With --auto-record (or watch.auto_record) a recording is started when the
application appears and finalized when it exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("process") {
			cfg.Watch.Process, _ = cmd.Flags().GetString("process")
		}
		if cmd.Flags().Changed("auto-record") {
			cfg.Watch.AutoRecord, _ = cmd.Flags().GetBool("auto-record")
		}

		svc, err := newService()
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := watch.New(cfg.Watch.Process, cfg.Watch.Interval, nil, func(e watch.Event) {
			state := "stopped"
			if e.Running {
				state = "running"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", e.At.Format("15:04:05"), e.Process, state)
			svc.HandleWatchEvent(e)
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return w.Run(gctx)
		})
		err = g.Wait()

		svc.StopRecording()
		if _, werr := svc.WaitForRecording(context.Background()); werr != nil {
			slog.Error("Recording did not finish cleanly", "error", werr)
		}
		return err
	},
}

func init() {
	watchCmd.Flags().String("process", "", "process name fragment to watch (default from watch.process)")
	watchCmd.Flags().Bool("auto-record", false, "record while the process is running")
}
