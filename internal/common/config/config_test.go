package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.OutputPath)
	assert.Equal(t, CodecMinimal, cfg.Bridge.Codec)
	assert.Equal(t, "/callback", cfg.Bridge.CallbackPath)
	assert.Equal(t, time.Second, cfg.Bridge.LivenessIntervalDuration())
	assert.Equal(t, int64(16<<20), cfg.Bridge.MaxFrameSize)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("OAUTHBRIDGE_LOGGING_LEVEL", "debug")
	t.Setenv("OAUTHBRIDGE_BRIDGE_CODEC", "conformant")
	t.Setenv("OAUTHBRIDGE_BRIDGE_LIVENESS_INTERVAL", "250")
	t.Setenv("OAUTHBRIDGE_BRIDGE_CALLBACK_PATH", "/oauth/return")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, CodecConformant, cfg.Bridge.Codec)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.LivenessIntervalDuration())
	assert.Equal(t, "/oauth/return", cfg.Bridge.CallbackPath)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	yaml := "logging:\n  level: warn\nbridge:\n  livenessInterval: 0\n  codec: conformant\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oauthbridge.yaml"), []byte(yaml), 0o600))

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", dir, "--codec", "minimal"}))

	cfg, err := LoadWithFlags(fs)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.Bridge.LivenessInterval)
	assert.Equal(t, CodecMinimal, cfg.Bridge.Codec, "flag wins over file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown codec",
			env:  map[string]string{"OAUTHBRIDGE_BRIDGE_CODEC": "fancy"},
			want: "bridge.codec",
		},
		{
			name: "relative callback path",
			env:  map[string]string{"OAUTHBRIDGE_BRIDGE_CALLBACK_PATH": "callback"},
			want: "bridge.callbackPath",
		},
		{
			name: "negative liveness interval",
			env:  map[string]string{"OAUTHBRIDGE_BRIDGE_LIVENESS_INTERVAL": "-5"},
			want: "bridge.livenessInterval",
		},
		{
			name: "bad log level",
			env:  map[string]string{"OAUTHBRIDGE_LOGGING_LEVEL": "loud"},
			want: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
