// Package gwconfig loads and validates the gateway's startup configuration:
// a YAML file merged over built-in defaults, in the same load-then-merge shape the
// teacher's settings layering uses, adapted from per-user/per-project JSON
// config to a single YAML service config (this gateway has no per-user
// notion).
package gwconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every startup parameter named in spec §6.3.
type Config struct {
	DockerImage                string   `yaml:"docker_image"`
	WorkerCommand              []string `yaml:"worker_command"`
	DataHostPath               string   `yaml:"data_host_path"`
	DataContainerPath          string   `yaml:"data_container_path"`
	DataVolumeMode             string   `yaml:"data_volume_mode"`
	WorkerProgramHostPath      string   `yaml:"worker_program_host_path"`
	WorkerProgramContainerPath string   `yaml:"worker_program_container_path"`
	AlfworldConfigPath         string   `yaml:"alfworld_config_path"`
	MaxSessions                int      `yaml:"max_sessions"`
	BatchWindowMS              int      `yaml:"batch_window_ms"`
	IdleTimeoutS               int      `yaml:"idle_timeout_s"`
	ExchangeTimeoutS           int      `yaml:"exchange_timeout_s"`
	ReaperIntervalS            int      `yaml:"reaper_interval_s"`
	ListenHost                 string   `yaml:"listen_host"`
	ListenPort                 int      `yaml:"listen_port"`
	LogLevel                   string   `yaml:"log_level"`
	LogFile                    string   `yaml:"log_file"`
}

// Default returns the configuration's default values, mirroring the
// original ServerConfig's field defaults.
func Default() Config {
	return Config{
		DockerImage:              "alfworld-text:latest",
		WorkerCommand:            []string{"python", "-u", "alfworld/api/worker.py"},
		DataHostPath:             "~/.cache/alfworld",
		DataContainerPath:        "/data",
		DataVolumeMode:             "ro",
		WorkerProgramContainerPath: "/alfworld/alfworld/api",
		AlfworldConfigPath:         "configs/base_config.yaml",
		MaxSessions:                8,
		BatchWindowMS:              50,
		IdleTimeoutS:               600,
		ExchangeTimeoutS:           60,
		ReaperIntervalS:            60,
		ListenHost:                 "0.0.0.0",
		ListenPort:                 8000,
		LogLevel:                   "info",
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error — the defaults stand, matching the teacher's tolerant config load.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.expand().Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.expand().Validate()
		}
		return cfg, fmt.Errorf("gwconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("gwconfig: parse %s: %w", path, err)
	}
	cfg = cfg.expand()
	return cfg, cfg.Validate()
}

// expand resolves a leading "~" in host paths to the user's home directory.
func (c Config) expand() Config {
	c.DataHostPath = expandHome(c.DataHostPath)
	c.WorkerProgramHostPath = expandHome(c.WorkerProgramHostPath)
	return c
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Validate checks the fields a misconfigured gateway would otherwise fail
// on only once a client hits it — fail fast at startup instead.
func (c Config) Validate() error {
	if c.DockerImage == "" {
		return fmt.Errorf("gwconfig: docker_image must not be empty")
	}
	if len(c.WorkerCommand) == 0 {
		return fmt.Errorf("gwconfig: worker_command must not be empty")
	}
	if c.DataHostPath == "" || c.DataContainerPath == "" {
		return fmt.Errorf("gwconfig: data_host_path and data_container_path are required")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("gwconfig: max_sessions must be positive, got %d", c.MaxSessions)
	}
	if c.BatchWindowMS < 0 {
		return fmt.Errorf("gwconfig: batch_window_ms must not be negative")
	}
	if c.IdleTimeoutS <= 0 {
		return fmt.Errorf("gwconfig: idle_timeout_s must be positive")
	}
	if c.ExchangeTimeoutS <= 0 {
		return fmt.Errorf("gwconfig: exchange_timeout_s must be positive")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("gwconfig: listen_port out of range: %d", c.ListenPort)
	}
	return nil
}

// BatchWindow returns the batch window as a time.Duration.
func (c Config) BatchWindow() time.Duration { return time.Duration(c.BatchWindowMS) * time.Millisecond }

// ExchangeTimeout returns the per-exchange read deadline as a time.Duration.
func (c Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.ExchangeTimeoutS) * time.Second
}

// IdleTimeout returns the idle eviction threshold as a time.Duration.
func (c Config) IdleTimeout() time.Duration { return time.Duration(c.IdleTimeoutS) * time.Second }

// ReaperInterval returns the reaper's sweep interval as a time.Duration.
func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalS) * time.Second
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort) }
