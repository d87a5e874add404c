package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Store an encoded recording in the output directory",
	Long: `Copy an already encoded recording (for example a browser WebM blob) verbatim
into the output directory. Reads from stdin when no file or "-" is given.
Without --name the file is stored as recording_<unix-millis> with the
configured raw extension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}

		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		svc, err := newService()
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		path, err := svc.SaveRawAudio(data, name)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	saveCmd.Flags().StringP("name", "n", "", "file name to store under (directories are stripped)")
}
