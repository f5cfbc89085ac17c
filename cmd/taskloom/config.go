package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all taskloom server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string `json:"db_path"`
	WorkflowsDir    string `json:"workflows_dir"`
	LogLevel        string `json:"log_level"`
	MaxAgentRetries int    `json:"max_agent_retries"`
	Scheduler       bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(taskloomDir(), "taskloom.db"),
		WorkflowsDir:    filepath.Join(taskloomDir(), "workflows"),
		LogLevel:        "info",
		MaxAgentRetries: 3,
		Scheduler:       true,
	}
}

func taskloomDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskloom"
	}
	return filepath.Join(home, ".taskloom")
}

func settingsPath() string {
	return filepath.Join(taskloomDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("TASKLOOM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TASKLOOM_WORKFLOWS_DIR"); v != "" {
		cfg.WorkflowsDir = v
	}
	if v := os.Getenv("TASKLOOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TASKLOOM_MAX_AGENT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAgentRetries = n
		}
	}
	if v := os.Getenv("TASKLOOM_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
