package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UsesDefaultsWhenEnvUnset(t *testing.T) {
	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://streaming.example.com", config.Service.BaseURL)
	assert.Equal(t, "wss://streaming.example.com/ws", config.Streaming.WSBaseURL)
	assert.Equal(t, "application/json", config.Streaming.DefaultFormat)
	assert.Equal(t, 9090, config.Admin.Port)
	assert.True(t, config.Admin.Enabled)
}

func TestLoad_ReadsOverridesFromEnv(t *testing.T) {
	os.Setenv("STREAMSUB_BASE_URL", "https://streaming.internal.test")
	os.Setenv("STREAMSUB_WS_BASE_URL", "wss://streaming.internal.test/ws")
	os.Setenv("STREAMSUB_ADMIN_PORT", "9191")
	os.Setenv("STREAMSUB_INACTIVITY_TIMEOUT", "45s")
	defer func() {
		os.Unsetenv("STREAMSUB_BASE_URL")
		os.Unsetenv("STREAMSUB_WS_BASE_URL")
		os.Unsetenv("STREAMSUB_ADMIN_PORT")
		os.Unsetenv("STREAMSUB_INACTIVITY_TIMEOUT")
	}()

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://streaming.internal.test", config.Service.BaseURL)
	assert.Equal(t, "wss://streaming.internal.test/ws", config.Streaming.WSBaseURL)
	assert.Equal(t, 9191, config.Admin.Port)
	assert.Equal(t, 45e9, float64(config.Streaming.InactivityTimeout))
}

func TestValidate_RejectsEmptyBaseURL(t *testing.T) {
	config := &Config{
		Service:   ServiceConfig{BaseURL: ""},
		Streaming: StreamingConfig{WSBaseURL: "wss://x", InactivityTimeout: 1},
	}
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAMSUB_BASE_URL is required")
}

func TestValidate_RejectsEmptyWSBaseURL(t *testing.T) {
	config := &Config{
		Service:   ServiceConfig{BaseURL: "https://x"},
		Streaming: StreamingConfig{WSBaseURL: "", InactivityTimeout: 1},
	}
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAMSUB_WS_BASE_URL is required")
}

func TestValidate_RejectsNonPositiveInactivityTimeout(t *testing.T) {
	config := &Config{
		Service:   ServiceConfig{BaseURL: "https://x"},
		Streaming: StreamingConfig{WSBaseURL: "wss://x", InactivityTimeout: 0},
	}
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAMSUB_INACTIVITY_TIMEOUT")
}

func TestValidate_RejectsInvalidAdminPortWhenEnabled(t *testing.T) {
	config := &Config{
		Service:   ServiceConfig{BaseURL: "https://x"},
		Streaming: StreamingConfig{WSBaseURL: "wss://x", InactivityTimeout: 1},
		Admin:     AdminConfig{Enabled: true, Port: 70000},
	}
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid admin port")
}

func TestValidate_IgnoresAdminPortWhenDisabled(t *testing.T) {
	config := &Config{
		Service:   ServiceConfig{BaseURL: "https://x"},
		Streaming: StreamingConfig{WSBaseURL: "wss://x", InactivityTimeout: 1},
		Admin:     AdminConfig{Enabled: false, Port: -1},
	}
	assert.NoError(t, config.Validate())
}
