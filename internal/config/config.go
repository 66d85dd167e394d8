// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Environment() EnvironmentConfig
	Channel() ChannelConfig
	Evaluation() EvaluationConfig
	Plan() PlanConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Environment Setters
	SetEnvironmentID(string)
	SetEnvironmentURL(string)
	SetScreenshotQuality(string)

	// Channel Setters
	SetChannelMode(string)

	// Plan Setters
	SetPlanParallel(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	EnvironmentCfg EnvironmentConfig `mapstructure:"environment" yaml:"environment"`
	ChannelCfg     ChannelConfig     `mapstructure:"channel" yaml:"channel"`
	EvaluationCfg  EvaluationConfig  `mapstructure:"evaluation" yaml:"evaluation"`
	PlanCfg        PlanConfig        `mapstructure:"plan" yaml:"plan"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Environment() EnvironmentConfig { return c.EnvironmentCfg }
func (c *Config) Channel() ChannelConfig         { return c.ChannelCfg }
func (c *Config) Evaluation() EvaluationConfig   { return c.EvaluationCfg }
func (c *Config) Plan() PlanConfig               { return c.PlanCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetEnvironmentID(id string)    { c.EnvironmentCfg.EnvID = id }
func (c *Config) SetEnvironmentURL(u string)    { c.EnvironmentCfg.URL = u }
func (c *Config) SetScreenshotQuality(q string) { c.EnvironmentCfg.ScreenshotQuality = q }
func (c *Config) SetChannelMode(m string)       { c.ChannelCfg.Mode = m }
func (c *Config) SetPlanParallel(n int)         { c.PlanCfg.Parallel = n }

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome instance hosting the environment and the
// mobile device it emulates.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	Viewport          Viewport      `mapstructure:"viewport" yaml:"viewport"`
	DeviceScaleFactor float64       `mapstructure:"device_scale_factor" yaml:"device_scale_factor"`
	Mobile            bool          `mapstructure:"mobile" yaml:"mobile"`
	Touch             bool          `mapstructure:"touch" yaml:"touch"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Platform          string        `mapstructure:"platform" yaml:"platform"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	Settle            time.Duration `mapstructure:"settle" yaml:"settle"`
}

// Viewport is the emulated CSS viewport.
type Viewport struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// EnvironmentConfig identifies the hosted task environment and the screenshot
// resolution callers supply coordinates in.
type EnvironmentConfig struct {
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	EnvID             string  `mapstructure:"env_id" yaml:"env_id"`
	URL               string  `mapstructure:"url" yaml:"url"`
	ScreenshotQuality string  `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
	ScaleFactor       float64 `mapstructure:"scale_factor" yaml:"scale_factor"`
}

// ResolveURL returns the page to load: the explicit URL when set, otherwise
// {base_url}/{env_id}/index.html.
func (e EnvironmentConfig) ResolveURL() (string, error) {
	if e.URL != "" {
		return e.URL, nil
	}
	if e.EnvID == "" {
		return "", fmt.Errorf("environment.env_id or environment.url is required")
	}
	return fmt.Sprintf("%s/%s/index.html", strings.TrimRight(e.BaseURL, "/"), e.EnvID), nil
}

// ChannelConfig selects the command channel.
type ChannelConfig struct {
	Mode           string        `mapstructure:"mode" yaml:"mode"`
	FrameSelector  string        `mapstructure:"frame_selector" yaml:"frame_selector"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
}

// EvaluationConfig tunes the evaluation lifecycle.
type EvaluationConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StartSettle   time.Duration `mapstructure:"start_settle" yaml:"start_settle"`
	TrajectoryKey string        `mapstructure:"trajectory_key" yaml:"trajectory_key"`
}

// PlanConfig controls plan execution from the CLI.
type PlanConfig struct {
	ActionsPerSecond float64 `mapstructure:"actions_per_second" yaml:"actions_per_second"`
	Parallel         int     `mapstructure:"parallel" yaml:"parallel"`
	OutputPath       string  `mapstructure:"output_path" yaml:"output_path"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// DefaultUserAgent is the mobile Safari identity presented to environments.
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wobdriver")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 390)
	v.SetDefault("browser.viewport.height", 844)
	v.SetDefault("browser.device_scale_factor", 3.0)
	v.SetDefault("browser.mobile", true)
	v.SetDefault("browser.touch", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.platform", "iPhone")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/Los_Angeles")
	v.SetDefault("browser.ready_timeout", "10s")
	v.SetDefault("browser.settle", "500ms")

	// -- Environment --
	v.SetDefault("environment.base_url", "https://niumascript.com/scalewob-env")
	v.SetDefault("environment.env_id", "")
	v.SetDefault("environment.url", "")
	v.SetDefault("environment.screenshot_quality", "high")
	v.SetDefault("environment.scale_factor", 0.0)

	// -- Channel --
	v.SetDefault("channel.mode", "direct")
	v.SetDefault("channel.frame_selector", "iframe")
	v.SetDefault("channel.default_timeout", "5s")

	// -- Evaluation --
	v.SetDefault("evaluation.timeout", "10s")
	v.SetDefault("evaluation.start_settle", "1s")
	v.SetDefault("evaluation.trajectory_key", "trajectory")

	// -- Plan --
	v.SetDefault("plan.actions_per_second", 0.0)
	v.SetDefault("plan.parallel", 1)
	v.SetDefault("plan.output_path", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	paths := []*string{&c.LoggerCfg.LogFile, &c.BrowserCfg.ExecPath, &c.PlanCfg.OutputPath}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.EnvironmentCfg.Validate(); err != nil {
		return fmt.Errorf("environment configuration invalid: %w", err)
	}
	if err := c.ChannelCfg.Validate(); err != nil {
		return fmt.Errorf("channel configuration invalid: %w", err)
	}
	if err := c.EvaluationCfg.Validate(); err != nil {
		return fmt.Errorf("evaluation configuration invalid: %w", err)
	}
	if c.PlanCfg.Parallel < 1 {
		return fmt.Errorf("plan.parallel must be a positive integer")
	}
	if c.PlanCfg.ActionsPerSecond < 0 {
		return fmt.Errorf("plan.actions_per_second must not be negative")
	}
	return nil
}

// Validate checks the BrowserConfig settings.
func (b *BrowserConfig) Validate() error {
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must have a positive width and height")
	}
	if b.DeviceScaleFactor <= 0 {
		return fmt.Errorf("device_scale_factor must be positive")
	}
	if b.ReadyTimeout <= 0 {
		return fmt.Errorf("ready_timeout must be a positive duration")
	}
	if b.Settle < 0 {
		return fmt.Errorf("settle must not be negative")
	}
	return nil
}

// Validate checks the EnvironmentConfig settings.
func (e *EnvironmentConfig) Validate() error {
	switch e.ScreenshotQuality {
	case "low", "high":
	default:
		return fmt.Errorf("screenshot_quality must be \"low\" or \"high\", got %q", e.ScreenshotQuality)
	}
	if e.ScaleFactor < 0 {
		return fmt.Errorf("scale_factor must not be negative")
	}
	return nil
}

// Validate checks the ChannelConfig settings.
func (ch *ChannelConfig) Validate() error {
	switch ch.Mode {
	case "direct":
	case "relayed":
		if strings.TrimSpace(ch.FrameSelector) == "" {
			return fmt.Errorf("frame_selector is required in relayed mode")
		}
	default:
		return fmt.Errorf("mode must be \"direct\" or \"relayed\", got %q", ch.Mode)
	}
	if ch.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the EvaluationConfig settings.
func (ev *EvaluationConfig) Validate() error {
	if ev.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if ev.StartSettle < 0 {
		return fmt.Errorf("start_settle must not be negative")
	}
	if ev.TrajectoryKey == "" {
		return fmt.Errorf("trajectory_key must not be empty")
	}
	return nil
}
