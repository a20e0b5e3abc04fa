package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure for the agent.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
}

// ColorConfig defines the console colors for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug"`
	Info  string `mapstructure:"info"`
	Warn  string `mapstructure:"warn"`
	Error string `mapstructure:"error"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// PostgresConfig holds settings for the task store connection.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// BrowserConfig holds settings for the browser the agent drives.
type BrowserConfig struct {
	// Headless is false by default so an operator can complete the
	// interactive login in a visible window.
	Headless    bool           `mapstructure:"headless"`
	UserDataDir string         `mapstructure:"user_data_dir"`
	Viewport    ViewportConfig `mapstructure:"viewport"`
	Args        []string       `mapstructure:"args"`
}

// ViewportConfig fixes the page size. The coordinate fallback strategy depends
// on it; changing it invalidates the configured fallback points.
type ViewportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// PipelineConfig holds the timing policy for the stage executor.
type PipelineConfig struct {
	// SettleDelay is the fixed pause after each click; the target page offers
	// no reliable ready signal.
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	LoginPollInterval time.Duration `mapstructure:"login_poll_interval"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	ConfirmScreens    int           `mapstructure:"confirm_screens"`
	DebugDir          string        `mapstructure:"debug_dir"`
}

// ExtractorConfig tunes the result-page heuristics. The upstream page changes
// layout without notice, so these knobs are versioned and kept out of code.
type ExtractorConfig struct {
	HeuristicsVersion string `mapstructure:"heuristics_version"`
	NameMinLen        int    `mapstructure:"name_min_len"`
	NameMaxLen        int    `mapstructure:"name_max_len"`
	BoilerplatePhrase string `mapstructure:"boilerplate_phrase"`
	MinAvatarSize     int    `mapstructure:"min_avatar_size"`
}

// SetDefaults registers default values so the agent can run with a minimal
// config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "sorabot")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", ".sorabot-profile")
	v.SetDefault("browser.viewport.width", 1440)
	v.SetDefault("browser.viewport.height", 900)

	v.SetDefault("pipeline.settle_delay", 2*time.Second)
	v.SetDefault("pipeline.login_poll_interval", 5*time.Second)
	v.SetDefault("pipeline.resolve_timeout", 15*time.Second)
	v.SetDefault("pipeline.processing_timeout", 2*time.Minute)
	v.SetDefault("pipeline.confirm_screens", 3)
	v.SetDefault("pipeline.debug_dir", "debug")

	v.SetDefault("extractor.heuristics_version", "sora-2025-08")
	v.SetDefault("extractor.name_min_len", 2)
	v.SetDefault("extractor.name_max_len", 60)
	v.SetDefault("extractor.boilerplate_phrase", "Character by")
	v.SetDefault("extractor.min_avatar_size", 64)
}

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is a required configuration field (set SORABOT_POSTGRES_URL)")
	}
	if c.Pipeline.ProcessingTimeout <= 0 {
		return fmt.Errorf("pipeline.processing_timeout must be positive, got %s", c.Pipeline.ProcessingTimeout)
	}
	if c.Pipeline.ConfirmScreens < 0 {
		return fmt.Errorf("pipeline.confirm_screens must not be negative, got %d", c.Pipeline.ConfirmScreens)
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must be positive, got %dx%d",
			c.Browser.Viewport.Width, c.Browser.Viewport.Height)
	}
	if c.Extractor.NameMinLen > c.Extractor.NameMaxLen {
		return fmt.Errorf("extractor.name_min_len (%d) exceeds name_max_len (%d)",
			c.Extractor.NameMinLen, c.Extractor.NameMaxLen)
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Set stores the configuration instance directly. Used by tests and by the
// root command after flag overrides.
func Set(cfg *Config) {
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("configuration not initialized; call config.Load() in the root command")
	}
	return instance
}
