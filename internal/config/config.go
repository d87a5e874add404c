package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. ACTURA_CAPTURE_QUEUE_SIZE
const EnvPrefix = "ACTURA"

type Config struct {
	AppName string        `mapstructure:"app_name" yaml:"app_name"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type OutputConfig struct {
	// Directory overrides the default Desktop/<app_name> location
	Directory    string `mapstructure:"directory" yaml:"directory"`
	RawExtension string `mapstructure:"raw_extension" yaml:"raw_extension"`
}

type CaptureConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`       // "malgo", "auto"
	Conversion string `mapstructure:"conversion" yaml:"conversion"` // "clamp", "wrap"
	// QueueSize is the number of buffers between the device callback and the
	// writer. 0 writes from the callback directly.
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type WatchConfig struct {
	Process    string        `mapstructure:"process" yaml:"process"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	AutoRecord bool          `mapstructure:"auto_record" yaml:"auto_record"`
}

type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

var defaultConfig = Config{
	AppName: "Actura",
	Output: OutputConfig{
		RawExtension: ".webm",
	},
	Capture: CaptureConfig{
		Backend:      "auto",
		Conversion:   "clamp",
		QueueSize:    64,
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
	},
	Watch: WatchConfig{
		Process:  "zoom",
		Interval: 2 * time.Second,
	},
	Notify: NotifyConfig{
		Enabled: true,
	},
	Server: ServerConfig{
		Port: 8080,
	},
	Log: LogConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	},
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	c := defaultConfig
	return &c
}

// DefaultPath returns the config file used when none is given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/actura.yaml")
}

// Load reads configFile on top of the defaults and environment overrides.
// A missing file is only an error when mustExist is set.
func Load(configFile string, mustExist bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if mustExist || !missing {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	c.Output.Directory = expandPath(c.Output.Directory)
	c.Log.File = expandPath(c.Log.File)
	if c.Output.RawExtension != "" && !strings.HasPrefix(c.Output.RawExtension, ".") {
		c.Output.RawExtension = "." + c.Output.RawExtension
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.raw_extension", d.Output.RawExtension)
	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.conversion", d.Capture.Conversion)
	v.SetDefault("capture.queue_size", d.Capture.QueueSize)
	v.SetDefault("capture.start_timeout", d.Capture.StartTimeout)
	v.SetDefault("capture.stop_timeout", d.Capture.StopTimeout)
	v.SetDefault("watch.process", d.Watch.Process)
	v.SetDefault("watch.interval", d.Watch.Interval)
	v.SetDefault("watch.auto_record", d.Watch.AutoRecord)
	v.SetDefault("notify.enabled", d.Notify.Enabled)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Validate checks values that would otherwise fail at runtime
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("app_name must not be empty")
	}
	if strings.ContainsAny(c.AppName, `/\`) {
		return fmt.Errorf("app_name must be a single directory name, got: %s", c.AppName)
	}

	switch strings.ToLower(c.Capture.Backend) {
	case "", "auto", "malgo", "pipewire":
	default:
		return fmt.Errorf("capture.backend must be 'auto', 'malgo' or 'pipewire', got: %s", c.Capture.Backend)
	}
	switch strings.ToLower(c.Capture.Conversion) {
	case "", "clamp", "wrap":
	default:
		return fmt.Errorf("capture.conversion must be 'clamp' or 'wrap', got: %s", c.Capture.Conversion)
	}
	if c.Capture.QueueSize < 0 {
		return fmt.Errorf("capture.queue_size must be >= 0, got: %d", c.Capture.QueueSize)
	}
	if c.Capture.StartTimeout <= 0 {
		return fmt.Errorf("capture.start_timeout must be > 0, got: %s", c.Capture.StartTimeout)
	}
	if c.Capture.StopTimeout <= 0 {
		return fmt.Errorf("capture.stop_timeout must be > 0, got: %s", c.Capture.StopTimeout)
	}

	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be > 0, got: %s", c.Watch.Interval)
	}
	if c.Watch.AutoRecord && strings.TrimSpace(c.Watch.Process) == "" {
		return fmt.Errorf("watch.process is required when watch.auto_record is enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", c.Server.Port)
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be >= 0")
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
