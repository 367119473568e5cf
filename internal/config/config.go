// Package config loads explorer configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Runner  RunnerConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	Token    string // bearer token for POST /runs; empty disables auth
	StaticUI string // directory served at /; empty disables
}

type RunnerConfig struct {
	BaseURL       string
	DefaultModel  string
	MaxIterations int
}

type StorageConfig struct {
	DataDir string // history catalog lives here
	RunsDir string // trace artifacts live here; <data_dir>/runs unless set
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Runner: RunnerConfig{
			BaseURL:       "http://localhost:8079",
			DefaultModel:  "gpt-4o-mini",
			MaxIterations: 15,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "rlmtrace-data"
		}
	}
	return filepath.Join(dir, "rlmtrace")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "rlmtrace", "config.json")
}

// Load reads configuration from $XDG_CONFIG_HOME/rlmtrace/config.json (a
// flat JSON object keyed like "server.port") and applies RLMTRACE_*
// environment overrides on top of the defaults.
func Load() (Config, error) {
	return loadWith(configFilePath(), os.Getenv)
}

func loadWith(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	// Runs live under the data dir unless placed explicitly, so moving
	// the data dir moves them too.
	if cfg.Storage.RunsDir == "" {
		cfg.Storage.RunsDir = filepath.Join(cfg.Storage.DataDir, "runs")
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	for _, spec := range specs {
		v, ok := raw[spec.key]
		if !ok {
			continue
		}
		if err := spec.set(cfg, v); err != nil {
			return fmt.Errorf("config key %q: %w", spec.key, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	for _, spec := range specs {
		v := getenv(spec.env)
		if v == "" {
			continue
		}
		if err := spec.set(cfg, v); err != nil {
			return fmt.Errorf("env %s: %w", spec.env, err)
		}
	}
	return nil
}

// keySpec maps one flat config key to its struct field. Values arrive as
// JSON types from the file or as strings from the environment.
type keySpec struct {
	key string
	env string
	set func(cfg *Config, v any) error
}

var specs = []keySpec{
	{key: "server.port", env: "RLMTRACE_SERVER_PORT",
		set: func(cfg *Config, v any) error { return toInt(v, &cfg.Server.Port) }},
	{key: "server.token", env: "RLMTRACE_SERVER_TOKEN",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Server.Token) }},
	{key: "server.static_ui", env: "RLMTRACE_SERVER_STATIC_UI",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Server.StaticUI) }},
	{key: "runner.base_url", env: "RLMTRACE_RUNNER_BASE_URL",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Runner.BaseURL) }},
	{key: "runner.default_model", env: "RLMTRACE_RUNNER_DEFAULT_MODEL",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Runner.DefaultModel) }},
	{key: "runner.max_iterations", env: "RLMTRACE_RUNNER_MAX_ITERATIONS",
		set: func(cfg *Config, v any) error { return toInt(v, &cfg.Runner.MaxIterations) }},
	{key: "storage.data_dir", env: "RLMTRACE_STORAGE_DATA_DIR",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Storage.DataDir) }},
	{key: "storage.runs_dir", env: "RLMTRACE_STORAGE_RUNS_DIR",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Storage.RunsDir) }},
	{key: "log.level", env: "RLMTRACE_LOG_LEVEL",
		set: func(cfg *Config, v any) error { return toString(v, &cfg.Log.Level) }},
}

func toString(v any, dst *string) error {
	switch val := v.(type) {
	case string:
		*dst = val
	default:
		*dst = fmt.Sprintf("%v", val)
	}
	return nil
}

func toInt(v any, dst *int) error {
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return fmt.Errorf("%v is not an integer", val)
		}
		*dst = int(val)
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid integer %q", val)
		}
		*dst = i
	default:
		return fmt.Errorf("invalid type %T", v)
	}
	return nil
}
