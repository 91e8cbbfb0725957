package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "CALLDESK_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("CALLDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("session_cookie", cfg.SessionCookie)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("default_region", cfg.DefaultRegion)
	v.SetDefault("phone_number_id", cfg.PhoneNumberID)
	v.SetDefault("identity", cfg.Identity)
	v.SetDefault("stale_time", cfg.StaleTime)
	v.SetDefault("query_retry", cfg.QueryRetry)
	v.SetDefault("page_size", cfg.PageSize)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("mic_on_connect", cfg.MicOnConnect)

	d := cfg.DevServer
	v.SetDefault("devserver.addr", d.Addr)
	v.SetDefault("devserver.database_path", d.DatabasePath)
	v.SetDefault("devserver.livekit_url", d.LiveKitURL)
	v.SetDefault("devserver.livekit_api_key", d.LiveKitAPIKey)
	v.SetDefault("devserver.livekit_api_secret", d.LiveKitAPISecret)
	v.SetDefault("devserver.jwt_secret", d.JWTSecret)
	v.SetDefault("devserver.session_ttl", d.SessionTTL)
	v.SetDefault("devserver.initial_balance", d.InitialBalance)
	v.SetDefault("devserver.call_cost", d.CallCost)
	v.SetDefault("devserver.read_header_timeout", d.ReadHeaderTimeout)
	v.SetDefault("devserver.shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("devserver.dials_per_minute", d.DialsPerMinute)
	v.SetDefault("devserver.stream_poll", d.StreamPoll)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := writeDefaultConfig(path, cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ResolvePath returns the config file Load would read for explicitPath.
func ResolvePath(explicitPath string) string {
	return resolveConfigPath(explicitPath)
}
