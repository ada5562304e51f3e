// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (e.g. NANOBANANA_BROWSER_HEADLESS).
const EnvPrefix = "NANOBANANA"

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig        `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig       `mapstructure:"browser" yaml:"browser"`
	Target     TargetConfig        `mapstructure:"target" yaml:"target"`
	Generation GenerationConfig    `mapstructure:"generation" yaml:"generation"`
	Download   DownloadConfig      `mapstructure:"download" yaml:"download"`
	Auth       AuthConfig          `mapstructure:"auth" yaml:"auth"`
	Selectors  map[string][]string `mapstructure:"selectors" yaml:"selectors"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser process and the pages it opens.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ProfileDir     string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int64         `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int64         `mapstructure:"viewport_height" yaml:"viewport_height"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	RelaunchPause  time.Duration `mapstructure:"relaunch_pause" yaml:"relaunch_pause"`
	// KeepPages retains attempt pages and the session after completion for debugging.
	KeepPages bool `mapstructure:"keep_pages" yaml:"keep_pages"`
}

// TargetConfig describes the driven web application's addresses.
type TargetConfig struct {
	AppURL         string        `mapstructure:"app_url" yaml:"app_url"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	SignInPatterns []string      `mapstructure:"sign_in_patterns" yaml:"sign_in_patterns"`
	AppPatterns    []string      `mapstructure:"app_patterns" yaml:"app_patterns"`
}

// GenerationConfig tunes the timing of the generation workflow.
type GenerationConfig struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	TransitionDelay time.Duration `mapstructure:"transition_delay" yaml:"transition_delay"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WatchdogMargin  time.Duration `mapstructure:"watchdog_margin" yaml:"watchdog_margin"`
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout" yaml:"strategy_timeout"`
	ClickTimeout    time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	// Tiers lists the quality tier labels, best first.
	Tiers            []string      `mapstructure:"tiers" yaml:"tiers"`
	RequireTopTier   bool          `mapstructure:"require_top_tier" yaml:"require_top_tier"`
	SubmitInterval   time.Duration `mapstructure:"submit_interval" yaml:"submit_interval"`
	MaxParallelWaits int           `mapstructure:"max_parallel_waits" yaml:"max_parallel_waits"`
}

// DownloadConfig configures download capture.
type DownloadConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PartialSuffixes []string      `mapstructure:"partial_suffixes" yaml:"partial_suffixes"`
}

// AuthConfig configures sign-in detection and interactive recovery.
type AuthConfig struct {
	Interactive   bool          `mapstructure:"interactive" yaml:"interactive"`
	SignInTimeout time.Duration `mapstructure:"sign_in_timeout" yaml:"sign_in_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// WatchdogTimeout bounds the submission phase and the result wait of an attempt.
// Capturing the download is bounded by download.timeout plus the same margin.
func (g GenerationConfig) WatchdogTimeout() time.Duration {
	return g.Timeout + g.WatchdogMargin
}

// TopTier returns the best quality tier label, or "" when none is configured.
func (g GenerationConfig) TopTier() string {
	if len(g.Tiers) == 0 {
		return ""
	}
	return g.Tiers[0]
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "nano-banana")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profile_dir", "~/.nano-banana/profile")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.launch_timeout", "45s")
	v.SetDefault("browser.relaunch_pause", "1500ms")
	v.SetDefault("browser.keep_pages", false)

	// -- Target --
	v.SetDefault("target.app_url", "https://gemini.google.com/app")
	v.SetDefault("target.nav_timeout", "60s")
	v.SetDefault("target.sign_in_patterns", []string{
		`^https://accounts\.google\.com/`,
		`ServiceLogin`,
		`/signin/`,
	})
	v.SetDefault("target.app_patterns", []string{`^https://gemini\.google\.com/(app|u/\d+/app)`})

	// -- Generation --
	v.SetDefault("generation.settle_delay", "2500ms")
	v.SetDefault("generation.transition_delay", "600ms")
	v.SetDefault("generation.timeout", "180s")
	v.SetDefault("generation.poll_interval", "2s")
	v.SetDefault("generation.watchdog_margin", "60s")
	v.SetDefault("generation.strategy_timeout", "2s")
	v.SetDefault("generation.click_timeout", "5s")
	v.SetDefault("generation.tiers", []string{"Pro", "Thinking", "Fast"})
	v.SetDefault("generation.require_top_tier", true)
	v.SetDefault("generation.submit_interval", "1s")
	v.SetDefault("generation.max_parallel_waits", 8)

	// -- Download --
	v.SetDefault("download.timeout", "60s")
	v.SetDefault("download.poll_interval", "250ms")
	v.SetDefault("download.partial_suffixes", []string{".crdownload", ".part", ".download", ".tmp"})

	// -- Auth --
	v.SetDefault("auth.interactive", true)
	v.SetDefault("auth.sign_in_timeout", "5m")
	v.SetDefault("auth.poll_interval", "1s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := ExpandPath(cfg.Browser.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("invalid browser.profile_dir: %w", err)
	}
	cfg.Browser.ProfileDir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPath resolves a leading "~" and returns an absolute path.
func ExpandPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is empty")
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Target.AppURL == "" {
		return fmt.Errorf("target.app_url is required")
	}
	if c.Browser.ProfileDir == "" {
		return fmt.Errorf("browser.profile_dir is required")
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation configuration invalid: %w", err)
	}
	if c.Download.Timeout <= 0 || c.Download.PollInterval <= 0 {
		return fmt.Errorf("download.timeout and download.poll_interval must be positive durations")
	}
	if c.Auth.SignInTimeout <= 0 || c.Auth.PollInterval <= 0 {
		return fmt.Errorf("auth.sign_in_timeout and auth.poll_interval must be positive durations")
	}
	return nil
}

// Validate checks the generation timing settings.
func (g *GenerationConfig) Validate() error {
	if g.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if g.PollInterval <= 0 || g.PollInterval > g.Timeout {
		return fmt.Errorf("poll_interval must be positive and no larger than timeout")
	}
	if g.WatchdogMargin <= 0 {
		return fmt.Errorf("watchdog_margin must be positive so the watchdog outlasts the result poll")
	}
	if g.StrategyTimeout <= 0 || g.ClickTimeout <= 0 {
		return fmt.Errorf("strategy_timeout and click_timeout must be positive durations")
	}
	if len(g.Tiers) == 0 {
		return fmt.Errorf("tiers must list at least one tier label")
	}
	if g.MaxParallelWaits <= 0 {
		return fmt.Errorf("max_parallel_waits must be a positive integer")
	}
	return nil
}
