package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/actura/internal/audio"
	"github.com/audiolibrelab/actura/internal/config"
	"github.com/audiolibrelab/actura/internal/notify"
	"github.com/audiolibrelab/actura/internal/service"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "actura",
	Short: "Microphone recorder for meetings",
	Long: `Actura records the default microphone to 16-bit PCM WAV files.

Recordings are written to ~/Desktop/Actura unless output.directory is set.
Start and stop can be driven from the command line, over HTTP with 'serve',
or automatically while a meeting application is running with 'watch'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The config file is optional unless given explicitly
		explicit := cfgFile != ""
		if !explicit {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(cfgFile, explicit)
		if err != nil {
			setupLogging(verboseLevel, nil)
			return fmt.Errorf("failed to load config: %w", err)
		}

		setupLogging(verboseLevel, &cfg.Log)
		slog.Debug("Configuration loaded", "config", cfgFile, "output", cfg.Output.Directory)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/actura.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

// setupLogging configures slog based on the verbose level. When a log file is
// configured, output is also written there with rotation.
func setupLogging(level int, logCfg *config.LogConfig) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if logCfg != nil && logCfg.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logCfg.File,
			MaxSize:    logCfg.MaxSizeMB,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAgeDays,
		})
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(w, opts)
	slog.SetDefault(slog.New(handler))
}

// newService builds the service from the loaded configuration
func newService() (*service.ActuraService, error) {
	backend, err := audio.NewBackend(cfg.Capture.Backend)
	if err != nil {
		return nil, err
	}
	slog.Debug("Using audio backend", "backend", backend.GetType())

	return service.New(cfg, backend, notify.New(cfg.Notify.Enabled))
}
