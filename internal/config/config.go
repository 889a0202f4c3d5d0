package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultSessionTimeoutSeconds = 1800
	DefaultSweepIntervalSeconds  = 60
	DefaultMemoryCapacity        = 1000
	DefaultImportanceThreshold   = 5
	DefaultRetrievalLimit        = 5
	DefaultArchiveWindowDays     = 7
)

type Config struct {
	DataDir  string            `json:"dataDir"`
	Session  SessionConfig     `json:"session"`
	Memory   MemoryConfig      `json:"memory"`
	History  HistoryConfig     `json:"history"`
	Personas map[string]string `json:"personas,omitempty"`
}

type SessionConfig struct {
	TimeoutSeconds       int `json:"timeoutSeconds"`
	SweepIntervalSeconds int `json:"sweepIntervalSeconds"`
}

type MemoryConfig struct {
	Capacity            int    `json:"capacity"`
	ImportanceThreshold int    `json:"importanceThreshold"`
	RetrievalLimit      int    `json:"retrievalLimit"`
	DBPath              string `json:"dbPath,omitempty"`
}

type HistoryConfig struct {
	ArchiveWindowDays int `json:"archiveWindowDays"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: filepath.Join(ConfigDir(), "data"),
		Session: SessionConfig{
			TimeoutSeconds:       DefaultSessionTimeoutSeconds,
			SweepIntervalSeconds: DefaultSweepIntervalSeconds,
		},
		Memory: MemoryConfig{
			Capacity:            DefaultMemoryCapacity,
			ImportanceThreshold: DefaultImportanceThreshold,
			RetrievalLimit:      DefaultRetrievalLimit,
		},
		History: HistoryConfig{
			ArchiveWindowDays: DefaultArchiveWindowDays,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".murmur")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if dir := os.Getenv("MURMUR_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if v := os.Getenv("MURMUR_SESSION_TIMEOUT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Session.TimeoutSeconds = parsed
		}
	}
	if v := os.Getenv("MURMUR_SWEEP_INTERVAL"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Session.SweepIntervalSeconds = parsed
		}
	}
	if v := os.Getenv("MURMUR_MEMORY_CAPACITY"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Memory.Capacity = parsed
		}
	}
	if v := os.Getenv("MURMUR_MEMORY_DB_PATH"); v != "" {
		cfg.Memory.DBPath = v
	}
	if v := os.Getenv("MURMUR_RETRIEVAL_LIMIT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Memory.RetrievalLimit = parsed
		}
	}
	if v := os.Getenv("MURMUR_ARCHIVE_WINDOW_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.History.ArchiveWindowDays = parsed
		}
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultConfig().DataDir
	}
	if cfg.Session.TimeoutSeconds <= 0 {
		cfg.Session.TimeoutSeconds = DefaultSessionTimeoutSeconds
	}
	if cfg.Session.SweepIntervalSeconds <= 0 {
		cfg.Session.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if cfg.Memory.Capacity <= 0 {
		cfg.Memory.Capacity = DefaultMemoryCapacity
	}
	if cfg.Memory.ImportanceThreshold <= 0 {
		cfg.Memory.ImportanceThreshold = DefaultImportanceThreshold
	}
	if cfg.Memory.RetrievalLimit <= 0 {
		cfg.Memory.RetrievalLimit = DefaultRetrievalLimit
	}
	if cfg.History.ArchiveWindowDays <= 0 {
		cfg.History.ArchiveWindowDays = DefaultArchiveWindowDays
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
