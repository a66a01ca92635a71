// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "citewright", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Browser.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, 3*time.Minute, cfg.Network.TaskTimeout)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("OverridesApply", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("logger.level", "debug")
		v.Set("browser.headless", false)
		v.Set("network.task_timeout", "45s")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logger.Level)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, 45*time.Second, cfg.Network.TaskTimeout)
	})

	t.Run("RejectsInvalidValues", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.concurrency", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.concurrency")
	})

	t.Run("RejectsNegativeRate", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("network.navigations_per_second", -1.0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
	})
}
