package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Endpoint  EndpointConfig  `mapstructure:"endpoint"`
	Session   chat.Identity   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Render    RenderConfig    `mapstructure:"render"`
}

// EndpointConfig describes the chat endpoint
type EndpointConfig struct {
	URL              string            `mapstructure:"url"`
	HeaderTimeoutStr string            `mapstructure:"header_timeout"`
	HeaderTimeout    time.Duration     `mapstructure:"-"`
	Headers          map[string]string `mapstructure:"headers"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	// Console mirrors log records to stderr.
	Console bool `mapstructure:"console"`
}

// TelemetryConfig controls request tracing and metrics export
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TraceFile   string `mapstructure:"trace_file"`
	ServiceName string `mapstructure:"service_name"`
}

// RenderConfig controls terminal output
type RenderConfig struct {
	Markdown bool   `mapstructure:"markdown"`
	Style    string `mapstructure:"style"`
	Width    int    `mapstructure:"width"`
}

const (
	DefaultEndpoint      = "http://localhost:3000/api/chat"
	DefaultHeaderTimeout = 30 * time.Second
	settingsDir          = ".chatstream"
	envPrefix            = "CHATSTREAM"
)

var (
	// Global config instance
	cfg *Config
)

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment. An empty cfgFile
// searches ./.chatstream and $XDG_CONFIG_HOME/.chatstream for settings.yaml;
// a missing file there is not an error.
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get home directory")
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./" + settingsDir)
		viper.AddConfigPath(filepath.Join(xdgConfigHome, settingsDir))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	// viper doesn't handle time.Duration directly
	if err := processDurations(loaded); err != nil {
		return nil, errors.Wrap(err, "failed to process durations")
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("endpoint.url", DefaultEndpoint)
	viper.SetDefault("endpoint.header_timeout", DefaultHeaderTimeout.String())
	viper.SetDefault("endpoint.headers", map[string]string{})

	viper.SetDefault("session.app_id", "")
	viper.SetDefault("session.session_id", "")
	viper.SetDefault("session.api_session_id", "")

	viper.SetDefault("logging.file", "./"+settingsDir+"/chatstream.log")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.max_size_mb", 10)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 28)
	viper.SetDefault("logging.compress", false)
	viper.SetDefault("logging.console", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.trace_file", "./"+settingsDir+"/telemetry.log")
	viper.SetDefault("telemetry.service_name", "chatstream")

	viper.SetDefault("render.markdown", true)
	viper.SetDefault("render.style", "auto")
	viper.SetDefault("render.width", 80)
}

// bindEnvironmentVariables binds the short-form environment variables that
// don't follow the CHATSTREAM_<SECTION>_<KEY> pattern
func bindEnvironmentVariables() {
	bind := func(key, short string) {
		long := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(key, long, envPrefix+"_"+short)
	}
	bind("endpoint.url", "ENDPOINT")
	bind("session.app_id", "APP_ID")
	bind("session.session_id", "SESSION_ID")
	bind("session.api_session_id", "API_SESSION_ID")
	bind("logging.level", "LOG_LEVEL")
	bind("logging.file", "LOG_FILE")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.Endpoint.HeaderTimeoutStr != "" {
		d, err := time.ParseDuration(c.Endpoint.HeaderTimeoutStr)
		if err != nil {
			return errors.Wrap(err, "invalid endpoint.header_timeout")
		}
		c.Endpoint.HeaderTimeout = d
	} else if c.Endpoint.HeaderTimeout == 0 {
		c.Endpoint.HeaderTimeout = DefaultHeaderTimeout
	}
	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
