package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/svcpanel/internal/env"
	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/registry"
	"github.com/loykin/svcpanel/internal/supervisor"
)

// EnvPrefix prefixes every environment override, e.g. SVCPANEL_SERVER_LISTEN.
const EnvPrefix = "SVCPANEL"

// Config represents the whole TOML file.
type Config struct {
	Server         ServerConfig          `mapstructure:"server"`
	Web            WebConfig             `mapstructure:"web"`
	Sampler        metrics.SamplerConfig `mapstructure:"sampler"`
	Log            logger.Config         `mapstructure:"log"`
	History        HistoryConfig         `mapstructure:"history"`
	Metrics        MetricsConfig         `mapstructure:"metrics"`
	Health         HealthConfig          `mapstructure:"health"`
	CommandTimeout time.Duration         `mapstructure:"command_timeout"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// WebConfig describes the static file server started for the web service.
type WebConfig struct {
	Port     int      `mapstructure:"port"`
	Dir      string   `mapstructure:"dir"`
	Python   string   `mapstructure:"python"`
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
}

// HistoryConfig selects an action history sink. An empty DSN disables history.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HealthConfig controls the reachability checks reported with the status.
type HealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Host    string        `mapstructure:"host"`
	SSHPort int           `mapstructure:"ssh_port"`
}

func setDefaults(v *viper.Viper) {
	def := registry.DefaultOptions()
	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.base_path", "")
	v.SetDefault("web.port", def.WebPort)
	v.SetDefault("web.dir", def.WebDir)
	v.SetDefault("web.python", def.Python)
	v.SetDefault("web.env", []string{})
	v.SetDefault("web.env_files", []string{})
	v.SetDefault("sampler.cpu_window", metrics.DefaultCPUWindow)
	v.SetDefault("sampler.ceiling", metrics.DefaultCeiling)
	v.SetDefault("sampler.disk_path", metrics.DefaultDiskPath)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.show_time", true)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.path", "")
	v.SetDefault("log.stdout", "")
	v.SetDefault("log.stderr", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.timeout", supervisor.DefaultHealthTimeout)
	v.SetDefault("health.host", def.CheckHost)
	v.SetDefault("health.ssh_port", def.SSHPort)
	v.SetDefault("command_timeout", time.Duration(0))
}

// Load reads path (TOML) on top of the defaults and applies environment
// overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// variables understood by the stock Termux scripts
	if err := v.BindEnv("web.dir", EnvPrefix+"_WEB_DIR", "WEBSITE_DIR"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("log.dir", EnvPrefix+"_LOG_DIR", "LOGS_DIR"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Web.Dir = ExpandHome(cfg.Web.Dir)
	cfg.Log.File.Dir = ExpandHome(cfg.Log.File.Dir)
	cfg.Log.File.Path = ExpandHome(cfg.Log.File.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the supervisor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web.port %d out of range", c.Web.Port))
	}
	if c.Health.SSHPort < 1 || c.Health.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("health.ssh_port %d out of range", c.Health.SSHPort))
	}
	if c.Health.Timeout < 0 {
		errs = append(errs, fmt.Errorf("health.timeout must not be negative"))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command_timeout must not be negative"))
	}
	if c.Sampler.CPUWindow < 0 || c.Sampler.Ceiling < 0 {
		errs = append(errs, fmt.Errorf("sampler durations must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "color":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RegistryOptions returns the registry knobs, with the web env resolved.
func (c *Config) RegistryOptions() (registry.Options, error) {
	webEnv, err := c.WebEnv()
	if err != nil {
		return registry.Options{}, err
	}
	return registry.Options{
		WebPort:   c.Web.Port,
		WebDir:    c.Web.Dir,
		Python:    c.Web.Python,
		WebEnv:    webEnv,
		SSHPort:   c.Health.SSHPort,
		CheckHost: c.Health.Host,
	}, nil
}

// WebEnv merges web.env_files in order, then web.env entries on top.
// ${VAR} references to the OS environment are resolved when the server is spawned.
func (c *Config) WebEnv() ([]string, error) {
	var entries []string
	for _, p := range c.Web.EnvFiles {
		pairs, err := LoadEnvFile(ExpandHome(p))
		if err != nil {
			return nil, err
		}
		entries = append(entries, pairs...)
	}
	entries = append(entries, c.Web.Env...)
	return env.Merge(nil, entries...), nil
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in file order.
func LoadEnvFile(path string) ([]string, error) {
	pairs, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		out = append(out, kv[0]+"="+kv[1])
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) ([][2]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			out = append(out, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
		}
	}
	return out, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
