package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the default microphone to a WAV file",
	Long: `Record the default input device in its native channel count and sample rate.
The recording is written as 16-bit PCM WAV and finalized when recording stops,
either on Ctrl+C or after --duration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")

		svc, err := newService()
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		path, err := svc.StartRecording(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		if duration > 0 {
			slog.Info("Recording", "path", path, "duration", duration)
		} else {
			slog.Info("Recording - Press Ctrl+C to stop", "path", path)
		}

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		var timeout <-chan time.Time
		if duration > 0 {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case <-sigChan:
		case <-timeout:
		case <-svc.RecordingDone():
			// The session ended on its own, e.g. after a write failure
		}

		slog.Info("Stopping recording...")
		svc.StopRecording()

		info, err := svc.WaitForRecording(context.Background())
		if err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}

		fmt.Printf("Saved %s (%d samples, %d Hz, %d channel(s))\n",
			info.OutputFile, info.SamplesWritten, info.SampleRate, info.Channels)
		if info.DroppedBuffers > 0 || info.StreamErrors > 0 {
			slog.Warn("Recording had gaps", "dropped_buffers", info.DroppedBuffers, "stream_errors", info.StreamErrors)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().DurationP("duration", "d", 0, "stop after this long (default: until Ctrl+C)")
}
