// Package config loads server settings from defaults, an optional YAML
// file, and environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Settings is the full server configuration.
type Settings struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	// PrivilegedEmail is the single account exempt from expiry-based
	// suspension.
	PrivilegedEmail string `yaml:"privileged_email"`

	// SuperAdminEmail owns the deployment-wide globalConfig blob.
	SuperAdminEmail string `yaml:"super_admin_email"`

	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	ReevalInterval  time.Duration `yaml:"reeval_interval"`
	GlobalConfigTTL time.Duration `yaml:"global_config_ttl"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		ListenAddr:      ":7655",
		DataDir:         "/var/lib/saporia",
		FetchTimeout:    8 * time.Second,
		ReevalInterval:  time.Minute,
		GlobalConfigTTL: 5 * time.Minute,
		LogLevel:        "info",
		LogFormat:       "auto",
	}
}

// Load builds settings from defaults, the YAML file at path (skipped when
// empty or missing), and environment variables.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	// A .env alongside the binary is a development convenience.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment from .env file")
	}

	if path != "" {
		if err := settings.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("path", path).Msg("Config file not found, using defaults")
			} else {
				return nil, err
			}
		}
	}

	settings.applyEnv()

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func (s *Settings) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Loaded configuration file")
	return nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("SAPORIA_LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv("SAPORIA_DATA_DIR"); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv("SAPORIA_PRIVILEGED_EMAIL"); v != "" {
		s.PrivilegedEmail = v
	}
	if v := os.Getenv("SAPORIA_SUPER_ADMIN_EMAIL"); v != "" {
		s.SuperAdminEmail = v
	}
	if v := os.Getenv("SAPORIA_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.FetchTimeout = d
		} else {
			log.Warn().Str("value", v).Msg("Invalid SAPORIA_FETCH_TIMEOUT, keeping previous value")
		}
	}
	if v := os.Getenv("SAPORIA_REEVAL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.ReevalInterval = d
		} else {
			log.Warn().Str("value", v).Msg("Invalid SAPORIA_REEVAL_INTERVAL, keeping previous value")
		}
	}
	if v := os.Getenv("SAPORIA_GLOBAL_CONFIG_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.GlobalConfigTTL = d
		} else {
			log.Warn().Str("value", v).Msg("Invalid SAPORIA_GLOBAL_CONFIG_TTL, keeping previous value")
		}
	}
	if v := os.Getenv("SAPORIA_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("SAPORIA_LOG_FORMAT"); v != "" {
		s.LogFormat = v
	}
}

// Validate checks the final configuration.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if strings.TrimSpace(s.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if s.SuperAdminEmail == "" {
		return fmt.Errorf("super_admin_email is required")
	}
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if s.ReevalInterval <= 0 {
		return fmt.Errorf("reeval_interval must be positive")
	}
	return nil
}
