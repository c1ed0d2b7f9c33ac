package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Browser     BrowserConfig   `toml:"browser"`
	Engine      EngineConfig    `toml:"engine"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// BrowserConfig contains browser pool configuration
type BrowserConfig struct {
	MaxInstances      int           `toml:"max_instances"`      // Maximum concurrent browser instances
	WarmInstances     int           `toml:"warm_instances"`     // Instances launched eagerly at startup
	Headless          bool          `toml:"headless"`           // Run Chrome headless
	DisableGPU        bool          `toml:"disable_gpu"`        // Disable GPU acceleration
	NoSandbox         bool          `toml:"no_sandbox"`         // Disable Chrome sandbox (containers)
	UserAgent         string        `toml:"user_agent"`         // User agent for all navigations
	AcquireTimeout    time.Duration `toml:"acquire_timeout"`    // Max wait for a free instance
	NavigationTimeout time.Duration `toml:"navigation_timeout"` // Default page navigation timeout
	NavigationRate    float64       `toml:"navigation_rate"`    // Navigations per second across the pool (0 = unlimited)
}

// EngineConfig contains workflow engine configuration
type EngineConfig struct {
	StepTimeout     time.Duration `toml:"step_timeout"`     // Default per-step timeout
	WorkflowTimeout time.Duration `toml:"workflow_timeout"` // Default whole-execution timeout
	HistoryLimit    int           `toml:"history_limit"`    // Executions retained in memory
}

// SchedulerConfig contains cron scheduler configuration
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled"`       // Start scheduler on boot
	Timezone     string `toml:"timezone"`      // Default timezone for jobs without one
	HistoryLimit int    `toml:"history_limit"` // Job executions retained in memory
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/agito",
				ResetOnStartup: false,
			},
		},
		Browser: BrowserConfig{
			MaxInstances:      3,
			WarmInstances:     0,
			Headless:          true,
			DisableGPU:        true,
			NoSandbox:         false,
			UserAgent:         "Agito-Automation/1.0",
			AcquireTimeout:    60 * time.Second,
			NavigationTimeout: 30 * time.Second,
			NavigationRate:    0,
		},
		Engine: EngineConfig{
			StepTimeout:     30 * time.Second,
			WorkflowTimeout: 10 * time.Minute,
			HistoryLimit:    100,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			Timezone:     "",
			HistoryLimit: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier ones, environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AGITO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("AGITO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AGITO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("AGITO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if maxInstances := os.Getenv("AGITO_BROWSER_MAX_INSTANCES"); maxInstances != "" {
		if m, err := strconv.Atoi(maxInstances); err == nil {
			config.Browser.MaxInstances = m
		}
	}
	if headless := os.Getenv("AGITO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if noSandbox := os.Getenv("AGITO_BROWSER_NO_SANDBOX"); noSandbox != "" {
		if n, err := strconv.ParseBool(noSandbox); err == nil {
			config.Browser.NoSandbox = n
		}
	}

	if tz := os.Getenv("AGITO_SCHEDULER_TIMEZONE"); tz != "" {
		config.Scheduler.Timezone = tz
	}

	if level := os.Getenv("AGITO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
