package cmd

import (
	"fmt"
	"time"

	"github.com/audiolibrelab/actura/internal/audio"
	"github.com/audiolibrelab/actura/internal/output"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved output paths and capture settings",
	Long:  `Display where the next recording will be written, the capture settings in effect and the recordings already in the output directory.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		svc, err := newService()
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		out := cmd.OutOrStdout()

		now := time.Now()
		fmt.Fprintf(out, "=== FILE PATHS ===\n")
		fmt.Fprintf(out, "output_directory: %s\n", svc.OutputDirectory())
		fmt.Fprintf(out, "next_recording: %s\n", output.RecordingName(now, output.WAVExtension))
		fmt.Fprintf(out, "next_raw_save: %s\n", output.RecordingName(now, cfg.Output.RawExtension))

		fmt.Fprintf(out, "\n=== CAPTURE ===\n")
		fmt.Fprintf(out, "backend: %s (available: %v)\n", cfg.Capture.Backend, audio.GetAvailableBackends())
		fmt.Fprintf(out, "conversion: %s\n", cfg.Capture.Conversion)
		if cfg.Capture.QueueSize == 0 {
			fmt.Fprintf(out, "delivery: direct\n")
		} else {
			fmt.Fprintf(out, "delivery: queued (%d buffers)\n", cfg.Capture.QueueSize)
		}
		fmt.Fprintf(out, "start_timeout: %s\n", cfg.Capture.StartTimeout)
		fmt.Fprintf(out, "stop_timeout: %s\n", cfg.Capture.StopTimeout)

		recordings, err := svc.ListRecordings()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n=== RECORDINGS (%d) ===\n", len(recordings))
		for i, r := range recordings {
			if limit > 0 && i >= limit {
				fmt.Fprintf(out, "... %d more\n", len(recordings)-limit)
				break
			}
			fmt.Fprintf(out, "%s  %8s  %s\n", r.ModTimeHuman, r.SizeHuman, r.Name)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().Int("limit", 10, "maximum number of recordings to list (0 = all)")
}
