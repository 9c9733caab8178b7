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
	Submit() SubmitConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(string)
	SetBrowserHumanoidEnabled(bool)

	// Submit Setters
	SetSubmitPolicy(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	SubmitCfg  SubmitConfig  `mapstructure:"submit" yaml:"submit"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Submit() SubmitConfig   { return c.SubmitCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserRemoteURL(u string)     { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetBrowserHumanoidEnabled(b bool) { c.BrowserCfg.Humanoid.Enabled = b }
func (c *Config) SetSubmitPolicy(p string)         { c.SubmitCfg.Policy = p }

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

// BrowserConfig holds settings for the controlled browser.
type BrowserConfig struct {
	// RemoteURL attaches to an already running browser (its DevTools
	// websocket or http endpoint). Empty launches a new one.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// TargetURL identifies the tab to drive, and is opened when no tab matches.
	TargetURL string `mapstructure:"target_url" yaml:"target_url"`
	Headless  bool   `mapstructure:"headless" yaml:"headless"`
	// UserDataDir keeps the login between launches. "~" is expanded.
	UserDataDir   string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	AttachTimeout time.Duration  `mapstructure:"attach_timeout" yaml:"attach_timeout"`
	// HeaderMarker is text found only in the queue's header row.
	HeaderMarker string         `mapstructure:"header_marker" yaml:"header_marker"`
	Humanoid     HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// HumanoidConfig tunes the pointer model used for clicks.
type HumanoidConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	FittsA         float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB         float64 `mapstructure:"fitts_b" yaml:"fitts_b"`
	ClickHoldMinMs int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
	Jitter         float64 `mapstructure:"jitter" yaml:"jitter"`
}

// SubmitConfig holds the labels and timing of the submission pipeline.
type SubmitConfig struct {
	AdvanceLabel     string `mapstructure:"advance_label" yaml:"advance_label"`
	SubmitLabel      string `mapstructure:"submit_label" yaml:"submit_label"`
	CloneLabel       string `mapstructure:"clone_label" yaml:"clone_label"`
	QuotaMarker      string `mapstructure:"quota_marker" yaml:"quota_marker"`
	DraftTabKeyword  string `mapstructure:"draft_tab_keyword" yaml:"draft_tab_keyword"`
	FailedTabKeyword string `mapstructure:"failed_tab_keyword" yaml:"failed_tab_keyword"`
	// SourceTab is where reprocessing returns when the active tab cannot be read.
	SourceTab string `mapstructure:"source_tab" yaml:"source_tab"`

	ModalSettle         time.Duration `mapstructure:"modal_settle" yaml:"modal_settle"`
	SelectSettle        time.Duration `mapstructure:"select_settle" yaml:"select_settle"`
	SelectSettleStep    time.Duration `mapstructure:"select_settle_step" yaml:"select_settle_step"`
	ConfirmRecheckDelay time.Duration `mapstructure:"confirm_recheck_delay" yaml:"confirm_recheck_delay"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPollAttempts     int           `mapstructure:"max_poll_attempts" yaml:"max_poll_attempts"`
	NudgeEvery          int           `mapstructure:"nudge_every" yaml:"nudge_every"`
	MenuPollInterval    time.Duration `mapstructure:"menu_poll_interval" yaml:"menu_poll_interval"`
	MenuPollAttempts    int           `mapstructure:"menu_poll_attempts" yaml:"menu_poll_attempts"`
	PageTransitionDelay time.Duration `mapstructure:"page_transition_delay" yaml:"page_transition_delay"`
	StatusInterval      time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
	// Policy is "lenient" or "strict".
	Policy string `mapstructure:"policy" yaml:"policy"`
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

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autosubmit")
	v.SetDefault("logger.log_file", "autosubmit.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.target_url", "https://alphafoldserver.com/")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.autosubmit/chrome-profile")
	v.SetDefault("browser.attach_timeout", "30s")
	v.SetDefault("browser.header_marker", "Name")
	setHumanoidDefaults(v)

	// -- Submit --
	v.SetDefault("submit.advance_label", "Continue and preview job")
	v.SetDefault("submit.submit_label", "Confirm and submit")
	v.SetDefault("submit.clone_label", "Clone and reuse")
	v.SetDefault("submit.quota_marker", "Daily quota")
	v.SetDefault("submit.draft_tab_keyword", "draft")
	v.SetDefault("submit.failed_tab_keyword", "failed")
	v.SetDefault("submit.source_tab", "Failed")
	v.SetDefault("submit.modal_settle", "2s")
	v.SetDefault("submit.select_settle", "800ms")
	v.SetDefault("submit.select_settle_step", "400ms")
	v.SetDefault("submit.confirm_recheck_delay", "1500ms")
	v.SetDefault("submit.poll_interval", "500ms")
	v.SetDefault("submit.max_poll_attempts", 60)
	v.SetDefault("submit.nudge_every", 1)
	v.SetDefault("submit.menu_poll_interval", "300ms")
	v.SetDefault("submit.menu_poll_attempts", 10)
	v.SetDefault("submit.page_transition_delay", "1500ms")
	v.SetDefault("submit.status_interval", "1500ms")
	v.SetDefault("submit.policy", "lenient")
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.fitts_a", 100.0)
	v.SetDefault("browser.humanoid.fitts_b", 150.0)
	v.SetDefault("browser.humanoid.click_hold_min_ms", 40)
	v.SetDefault("browser.humanoid.click_hold_max_ms", 80)
	v.SetDefault("browser.humanoid.jitter", 0.6)
}

// NewConfigFromViper unmarshals, expands and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.BrowserCfg.UserDataDir != "" {
		dir, err := homedir.Expand(cfg.BrowserCfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("expanding browser.user_data_dir: %w", err)
		}
		cfg.BrowserCfg.UserDataDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.BrowserCfg.RemoteURL == "" && c.BrowserCfg.TargetURL == "" {
		return fmt.Errorf("browser.target_url is required when browser.remote_url is empty")
	}
	if c.BrowserCfg.AttachTimeout <= 0 {
		return fmt.Errorf("browser.attach_timeout must be positive")
	}
	// An empty marker matches every row and would hide the whole queue.
	if strings.TrimSpace(c.BrowserCfg.HeaderMarker) == "" {
		return fmt.Errorf("browser.header_marker must not be empty")
	}
	if err := c.BrowserCfg.Humanoid.Validate(); err != nil {
		return fmt.Errorf("browser.humanoid configuration invalid: %w", err)
	}
	if err := c.SubmitCfg.Validate(); err != nil {
		return fmt.Errorf("submit configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the click hold bounds.
func (h *HumanoidConfig) Validate() error {
	if h.ClickHoldMinMs < 0 || h.ClickHoldMaxMs < h.ClickHoldMinMs {
		return fmt.Errorf("click_hold_max_ms (%d) must be >= click_hold_min_ms (%d) >= 0", h.ClickHoldMaxMs, h.ClickHoldMinMs)
	}
	return nil
}

// Validate checks labels, bounds and the policy name.
func (s *SubmitConfig) Validate() error {
	if strings.TrimSpace(s.AdvanceLabel) == "" || strings.TrimSpace(s.SubmitLabel) == "" {
		return fmt.Errorf("advance_label and submit_label are required")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if s.MaxPollAttempts <= 0 {
		return fmt.Errorf("max_poll_attempts must be a positive integer")
	}
	if s.NudgeEvery <= 0 {
		return fmt.Errorf("nudge_every must be a positive integer")
	}
	if s.MenuPollAttempts <= 0 {
		return fmt.Errorf("menu_poll_attempts must be a positive integer")
	}
	for name, d := range map[string]time.Duration{
		"modal_settle":          s.ModalSettle,
		"select_settle":         s.SelectSettle,
		"select_settle_step":    s.SelectSettleStep,
		"confirm_recheck_delay": s.ConfirmRecheckDelay,
		"menu_poll_interval":    s.MenuPollInterval,
		"page_transition_delay": s.PageTransitionDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	switch strings.ToLower(s.Policy) {
	case "", "lenient", "strict":
	default:
		return fmt.Errorf("policy must be lenient or strict, got %q", s.Policy)
	}
	return nil
}
