package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"sources"},
	Short:   "List available capture devices",
	Long:    `List the capture devices reported by the audio backend. Recording always uses the default one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		devices, err := svc.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list capture devices: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "🎙  Capture devices (%s, %s backend)\n", runtime.GOOS, cfg.Capture.Backend)
		fmt.Fprintf(out, "═══════════════════════════════════════\n\n")

		if len(devices) == 0 {
			fmt.Fprintln(out, "  No capture devices found")
			return nil
		}

		for i, d := range devices {
			marker := ""
			if d.Default {
				marker = " (default)"
			}
			fmt.Fprintf(out, "  %d. %s%s\n", i+1, d.Name, marker)
		}
		return nil
	},
}
