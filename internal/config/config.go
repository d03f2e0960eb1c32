package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the dispatcher. Precedence is
// defaults, then the YAML file, then environment variables; CLI flags are
// applied on top by the caller.
type Config struct {
	GPUIDs       []int // allow-list; empty means all present devices
	MinFreeMemMB uint64
	PollInterval time.Duration
	CommandsFile string
	LogDir       string
	JobsFile     string
	HTTPAddr     string // empty disables the status API
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MinFreeMemMB: 6000,
		PollInterval: 60 * time.Second,
		CommandsFile: "commands.txt",
		LogDir:       "./logs",
		JobsFile:     "./jobs.jsonl",
	}
}

// fileConfig mirrors the YAML schema. poll_interval is whole seconds.
type fileConfig struct {
	GPUIDs       *[]int  `yaml:"gpu_ids"`
	MinFreeMemMB *uint64 `yaml:"min_free_mem_mb"`
	PollInterval *int    `yaml:"poll_interval"`
	CommandsFile *string `yaml:"commands_file"`
	LogDir       *string `yaml:"log_dir"`
	JobsFile     *string `yaml:"jobs_file"`
	HTTPAddr     *string `yaml:"http_addr"`
}

// Load builds the effective configuration. An empty path skips the file
// layer; a given path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if fc.GPUIDs != nil {
		c.GPUIDs = *fc.GPUIDs
	}
	if fc.MinFreeMemMB != nil {
		c.MinFreeMemMB = *fc.MinFreeMemMB
	}
	if fc.PollInterval != nil {
		c.PollInterval = time.Duration(*fc.PollInterval) * time.Second
	}
	if fc.CommandsFile != nil {
		c.CommandsFile = *fc.CommandsFile
	}
	if fc.LogDir != nil {
		c.LogDir = *fc.LogDir
	}
	if fc.JobsFile != nil {
		c.JobsFile = *fc.JobsFile
	}
	if fc.HTTPAddr != nil {
		c.HTTPAddr = *fc.HTTPAddr
	}
	return nil
}

func (c *Config) applyEnv() {
	if ids, ok := getEnvIDs("GPUQ_GPU_IDS"); ok {
		c.GPUIDs = ids
	}
	c.MinFreeMemMB = getEnvUint("GPUQ_MIN_FREE_MEM_MB", c.MinFreeMemMB)
	c.PollInterval = getEnvDuration("GPUQ_POLL_INTERVAL", c.PollInterval)
	c.CommandsFile = getEnv("GPUQ_COMMANDS_FILE", c.CommandsFile)
	c.LogDir = getEnv("GPUQ_LOG_DIR", c.LogDir)
	c.JobsFile = getEnv("GPUQ_JOBS_FILE", c.JobsFile)
	c.HTTPAddr = getEnv("GPUQ_HTTP_ADDR", c.HTTPAddr)
}

// ParseIDs parses a comma-separated device id list like "0,1,3".
func ParseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty device id list")
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("device id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvUint(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvIDs(key string) ([]int, bool) {
	if v := os.Getenv(key); v != "" {
		if ids, err := ParseIDs(v); err == nil {
			return ids, true
		}
	}
	return nil, false
}
