// Package config resolves runtime configuration from an optional YAML file,
// environment variables and defaults, in that order of increasing priority.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ServerConfig locates the speech-to-braille service.
type ServerConfig struct {
	// WSURL is the streaming endpoint.
	WSURL string `yaml:"ws_url"`
	// HTTPURL is the base for the tables/translate/health endpoints.
	HTTPURL string `yaml:"http_url"`
}

// SessionConfig carries the initial session configuration.
type SessionConfig struct {
	BrailleTable string `yaml:"braille_table"`
	Language     string `yaml:"language"`
	Task         string `yaml:"task"`
}

// ArchiveConfig controls FLAC archiving of captured audio.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			WSURL:   "ws://localhost:8000/ws/speech-to-braille",
			HTTPURL: "http://localhost:8000",
		},
		Session: SessionConfig{
			BrailleTable: "en-ueb-g2.ctb",
			Language:     "en",
			Task:         "transcribe",
		},
	}
}

// Load reads path (skipped when empty or missing), applies environment
// overrides and validates. A present but unreadable or invalid file is an
// error; a missing file is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env + defaults
		case err != nil:
			return Config{}, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SIXDOT_WS_URL"); v != "" {
		cfg.Server.WSURL = v
	}
	if v := os.Getenv("SIXDOT_HTTP_URL"); v != "" {
		cfg.Server.HTTPURL = v
	}
	if v := os.Getenv("SIXDOT_TABLE"); v != "" {
		cfg.Session.BrailleTable = v
	}
	if v := os.Getenv("SIXDOT_LANGUAGE"); v != "" {
		cfg.Session.Language = v
	}
	if v := os.Getenv("SIXDOT_TASK"); v != "" {
		cfg.Session.Task = v
	}
	if v := os.Getenv("SIXDOT_ARCHIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.Enabled = b
		}
	}
	if v := os.Getenv("SIXDOT_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
}

// Validate checks the fields no component can default for us.
func (c Config) Validate() error {
	if c.Server.WSURL == "" {
		return fmt.Errorf("server.ws_url must not be empty")
	}
	if c.Server.HTTPURL == "" {
		return fmt.Errorf("server.http_url must not be empty")
	}
	if c.Session.Task != "transcribe" && c.Session.Task != "translate" {
		return fmt.Errorf("session.task must be transcribe or translate, got %q", c.Session.Task)
	}
	// The server rejects empty languages (whisper.cpp requires one).
	if c.Session.Language == "" {
		return fmt.Errorf("session.language must not be empty")
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		return fmt.Errorf("archive.dir required when archive.enabled")
	}
	return nil
}
