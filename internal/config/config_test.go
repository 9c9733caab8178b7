// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "autosubmit", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().Humanoid.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Browser().AttachTimeout)
	assert.Equal(t, "Name", cfg.Browser().HeaderMarker)
	assert.Equal(t, "Confirm and submit", cfg.Submit().SubmitLabel)
	assert.Equal(t, 2*time.Second, cfg.Submit().ModalSettle)
	assert.Equal(t, 1500*time.Millisecond, cfg.Submit().ConfirmRecheckDelay)
	assert.Equal(t, 60, cfg.Submit().MaxPollAttempts)
	assert.Equal(t, 1, cfg.Submit().NudgeEvery)
	assert.Equal(t, "lenient", cfg.Submit().Policy)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("MissingTarget", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.TargetURL = ""
		assert.ErrorContains(t, cfg.Validate(), "browser.target_url is required")

		cfg.SetBrowserRemoteURL("http://127.0.0.1:9222")
		assert.NoError(t, cfg.Validate(), "a remote browser needs no target url")
	})

	t.Run("EmptyHeaderMarker", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.HeaderMarker = "  "
		assert.ErrorContains(t, cfg.Validate(), "browser.header_marker must not be empty")
	})

	t.Run("HoldBounds", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Humanoid.ClickHoldMaxMs = 10
		cfg.BrowserCfg.Humanoid.ClickHoldMinMs = 20
		assert.ErrorContains(t, cfg.Validate(), "browser.humanoid")
	})

	t.Run("Submit", func(t *testing.T) {
		cases := map[string]func(s *SubmitConfig){
			"advance_label and submit_label": func(s *SubmitConfig) { s.SubmitLabel = " " },
			"poll_interval":                  func(s *SubmitConfig) { s.PollInterval = 0 },
			"max_poll_attempts":              func(s *SubmitConfig) { s.MaxPollAttempts = 0 },
			"nudge_every":                    func(s *SubmitConfig) { s.NudgeEvery = -1 },
			"menu_poll_attempts":             func(s *SubmitConfig) { s.MenuPollAttempts = 0 },
			"modal_settle":                   func(s *SubmitConfig) { s.ModalSettle = -time.Second },
			"policy must be":                 func(s *SubmitConfig) { s.Policy = "sometimes" },
		}
		for want, mutate := range cases {
			t.Run(want, func(t *testing.T) {
				cfg := NewDefaultConfig()
				mutate(&cfg.SubmitCfg)
				err := cfg.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), want)
			})
		}
	})

	t.Run("Setters", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetBrowserHeadless(true)
		cfg.SetBrowserHumanoidEnabled(false)
		cfg.SetSubmitPolicy("strict")
		assert.True(t, cfg.Browser().Headless)
		assert.False(t, cfg.Browser().Humanoid.Enabled)
		assert.Equal(t, "strict", cfg.Submit().Policy)
		assert.NoError(t, cfg.Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
browser:
  headless: true
  user_data_dir: ~/profiles/af
  humanoid:
    enabled: false
submit:
  max_poll_attempts: 12
  poll_interval: 250ms
  policy: strict
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.True(t, cfg.Browser().Headless)
	assert.False(t, cfg.Browser().Humanoid.Enabled)
	assert.Equal(t, filepath.Join(home, "profiles", "af"), cfg.Browser().UserDataDir)
	assert.Equal(t, 12, cfg.Submit().MaxPollAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Submit().PollInterval)
	assert.Equal(t, "strict", cfg.Submit().Policy)
	// Untouched keys keep their defaults.
	assert.Equal(t, "Continue and preview job", cfg.Submit().AdvanceLabel)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("submit.policy", "maybe")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
