package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/audiolibrelab/actura/internal/config"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View Actura configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfgFile, out)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path and whether it is in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", cfgFile, configFileState(cfgFile))
		return nil
	},
}

// configFileState describes whether path is the source of the loaded
// settings or whether built-in defaults are in effect.
func configFileState(path string) string {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "not found, using defaults and " + config.EnvPrefix + "_* environment"
	case err != nil:
		return fmt.Sprintf("unreadable: %v", err)
	case info.IsDir():
		return "is a directory"
	default:
		return fmt.Sprintf("loaded, %d bytes, modified %s", info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
