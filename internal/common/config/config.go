// Package config provides process settings for oauthbridge.
// Settings come from defaults, an optional oauthbridge.yaml, OAUTHBRIDGE_* environment
// variables, and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Codec names accepted by bridge.codec.
const (
	CodecMinimal    = "minimal"
	CodecConformant = "conformant"
)

// Config holds all configuration sections.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// BridgeConfig holds the tunables of the bridge itself. The per-launch values
// handed over by the parent (tokens, port) are not here; see package startup.
type BridgeConfig struct {
	// Codec selects the frame transport: "minimal" (raw handshake, restricted
	// framing) or "conformant" (gorilla/websocket dialer, validated handshake).
	Codec string `mapstructure:"codec"`

	// CallbackPath is the path the OAuth provider redirects to.
	CallbackPath string `mapstructure:"callbackPath"`

	// LivenessInterval is the watchdog period in milliseconds. 0 disables the
	// background watchdog; the parent is then only probed between frames.
	LivenessInterval int `mapstructure:"livenessInterval"`

	// MaxFrameSize caps the payload length accepted from the parent, in bytes.
	MaxFrameSize int64 `mapstructure:"maxFrameSize"`
}

// LivenessIntervalDuration returns the watchdog period as a time.Duration.
func (b *BridgeConfig) LivenessIntervalDuration() time.Duration {
	return time.Duration(b.LivenessInterval) * time.Millisecond
}

// Flags returns the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("oauthbridge", pflag.ContinueOnError)
	fs.String("config", "", "directory containing oauthbridge.yaml")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("codec", "", "frame transport (minimal, conformant)")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stderr")

	v.SetDefault("bridge.codec", CodecMinimal)
	v.SetDefault("bridge.callbackPath", "/callback")
	v.SetDefault("bridge.livenessInterval", 1000)
	v.SetDefault("bridge.maxFrameSize", 16<<20)
}

// Load reads configuration using only defaults, the environment and config files.
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags reads configuration and applies any flags set on fs, which
// should come from Flags and be already parsed.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OAUTHBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys onto SNAKE_CASE names.
	_ = v.BindEnv("logging.outputPath", "OAUTHBRIDGE_LOGGING_OUTPUT_PATH")
	_ = v.BindEnv("bridge.callbackPath", "OAUTHBRIDGE_BRIDGE_CALLBACK_PATH")
	_ = v.BindEnv("bridge.livenessInterval", "OAUTHBRIDGE_BRIDGE_LIVENESS_INTERVAL")
	_ = v.BindEnv("bridge.maxFrameSize", "OAUTHBRIDGE_BRIDGE_MAX_FRAME_SIZE")

	configPath := ""
	if fs != nil {
		configPath, _ = fs.GetString("config")
		if f := fs.Lookup("log-level"); f != nil && f.Changed {
			_ = v.BindPFlag("logging.level", f)
		}
		if f := fs.Lookup("codec"); f != nil && f.Changed {
			_ = v.BindPFlag("bridge.codec", f)
		}
	}

	v.SetConfigName("oauthbridge")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/oauthbridge")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	switch cfg.Bridge.Codec {
	case CodecMinimal, CodecConformant:
	default:
		errs = append(errs, "bridge.codec must be one of: minimal, conformant")
	}
	if !strings.HasPrefix(cfg.Bridge.CallbackPath, "/") {
		errs = append(errs, "bridge.callbackPath must start with /")
	}
	if cfg.Bridge.LivenessInterval < 0 {
		errs = append(errs, "bridge.livenessInterval must not be negative")
	}
	if cfg.Bridge.MaxFrameSize <= 0 {
		errs = append(errs, "bridge.maxFrameSize must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
