package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":5000" || cfg.Web.Port != 8000 || cfg.Web.Python != "python" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if strings.HasPrefix(cfg.Web.Dir, "~") || !strings.HasSuffix(cfg.Web.Dir, filepath.Join("termux-projects", "my-website")) {
		t.Fatalf("web dir not expanded: %q", cfg.Web.Dir)
	}
	if cfg.Sampler.CPUWindow != 800*time.Millisecond || cfg.Sampler.DiskPath != "/" {
		t.Fatalf("unexpected sampler: %+v", cfg.Sampler)
	}
	if cfg.CommandTimeout != 0 || cfg.Metrics.Enabled || cfg.History.DSN != "" {
		t.Fatalf("unexpected optional settings: %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.File.MaxBackups != 3 {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if !cfg.Health.Enabled || cfg.Health.Timeout != time.Second || cfg.Health.Host != "127.0.0.1" || cfg.Health.SSHPort != 8022 {
		t.Fatalf("unexpected health config: %+v", cfg.Health)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "svcpanel.toml", `
command_timeout = "15s"

[server]
listen = "127.0.0.1:5050"
base_path = "/panel"

[web]
port = 8080
dir = "/srv/site"
python = "python3"
env = ["PYTHONUNBUFFERED=1"]

[sampler]
cpu_window = "500ms"
ceiling = "900ms"
disk_path = "/data"

[log]
level = "debug"
format = "json"
dir = "`+filepath.ToSlash(dir)+`/logs"
max_size_mb = 5

[history]
dsn = "sqlite://`+filepath.ToSlash(dir)+`/history.db"

[metrics]
enabled = true

[health]
enabled = false
timeout = "300ms"
ssh_port = 2222
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:5050" || cfg.Server.BasePath != "/panel" {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.Web.Port != 8080 || cfg.Web.Dir != "/srv/site" || cfg.Web.Python != "python3" {
		t.Fatalf("web: %+v", cfg.Web)
	}
	if cfg.CommandTimeout != 15*time.Second {
		t.Fatalf("command_timeout = %v", cfg.CommandTimeout)
	}
	if cfg.Sampler.CPUWindow != 500*time.Millisecond || cfg.Sampler.Ceiling != 900*time.Millisecond || cfg.Sampler.DiskPath != "/data" {
		t.Fatalf("sampler: %+v", cfg.Sampler)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.File.MaxSizeMB != 5 || !strings.HasSuffix(cfg.Log.File.Dir, "logs") {
		t.Fatalf("log: %+v", cfg.Log)
	}
	if !strings.HasPrefix(cfg.History.DSN, "sqlite://") || !cfg.Metrics.Enabled {
		t.Fatalf("history/metrics: %+v %+v", cfg.History, cfg.Metrics)
	}
	if cfg.Health.Enabled || cfg.Health.Timeout != 300*time.Millisecond {
		t.Fatalf("health: %+v", cfg.Health)
	}
	opts, err := cfg.RegistryOptions()
	if err != nil {
		t.Fatalf("RegistryOptions: %v", err)
	}
	if opts.SSHPort != 2222 || opts.CheckHost != "127.0.0.1" {
		t.Fatalf("health registry options: %+v", opts)
	}
	if opts.WebPort != 8080 || opts.Python != "python3" || len(opts.WebEnv) != 1 || opts.WebEnv[0] != "PYTHONUNBUFFERED=1" {
		t.Fatalf("registry options: %+v", opts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SVCPANEL_SERVER_LISTEN", ":6000")
	t.Setenv("SVCPANEL_WEB_PORT", "9000")
	t.Setenv("WEBSITE_DIR", "/mnt/site")
	t.Setenv("LOGS_DIR", "/mnt/logs")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":6000" || cfg.Web.Port != 9000 {
		t.Fatalf("prefixed overrides not applied: %+v %+v", cfg.Server, cfg.Web)
	}
	if cfg.Web.Dir != "/mnt/site" || cfg.Log.File.Dir != "/mnt/logs" {
		t.Fatalf("legacy overrides not applied: web=%q log=%q", cfg.Web.Dir, cfg.Log.File.Dir)
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("SVCPANEL_WEB_DIR", "/new")
	t.Setenv("WEBSITE_DIR", "/old")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Dir != "/new" {
		t.Fatalf("web dir = %q", cfg.Web.Dir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"port":    "[web]\nport = 70000\n",
		"format":  "[log]\nformat = \"xml\"\n",
		"timeout": "command_timeout = \"-1s\"\n",
		"ssh":     "[health]\nssh_port = 0\n",
		"listen":  "[server]\nlisten = \" \"\n",
	}
	for name, data := range cases {
		p := writeFile(t, dir, name+".toml", data)
		if _, err := Load(p); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWebEnvMerge(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "A=1\n#comment\nB=two\n")
	cfg := &Config{Web: WebConfig{EnvFiles: []string{dotenv}, Env: []string{"B=three", "C=4", "bogus"}}}
	env, err := cfg.WebEnv()
	if err != nil {
		t.Fatalf("WebEnv: %v", err)
	}
	want := []string{"A=1", "B=three", "C=4"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Fatalf("env = %v, want %v", env, want)
	}

	cfg.Web.EnvFiles = []string{filepath.Join(dir, "missing.env")}
	if _, err := cfg.WebEnv(); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), ".env", "A=1\n\nB = two \n")
	pairs, err := LoadEnvFile(p)
	if err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if len(pairs) != 2 || pairs[0] != "A=1" || pairs[1] != "B=two" {
		t.Fatalf("pairs = %v", pairs)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := ExpandHome("~/site"); got != filepath.Join(home, "site") {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Fatalf("ExpandHome(~) = %q", got)
	}
	if got := ExpandHome("/abs/~x"); got != "/abs/~x" {
		t.Fatalf("ExpandHome changed absolute path: %q", got)
	}
}
