package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"complex", "1h30m", 90 * time.Minute, false},
		{"invalid", "invalid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))

			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration != tt.expected {
				t.Errorf("UnmarshalText() = %v, want %v", d.Duration, tt.expected)
			}
		})
	}
}

func TestDuration_MarshalText(t *testing.T) {
	d := Duration{5 * time.Minute}
	result, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(result) != "5m0s" {
		t.Errorf("MarshalText() = %v, want 5m0s", string(result))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.General.Name != "Villain" {
		t.Errorf("General.Name = %v, want Villain", cfg.General.Name)
	}
	if cfg.General.LogLevel != "info" {
		t.Errorf("General.LogLevel = %v, want info", cfg.General.LogLevel)
	}
	if cfg.Datastore.Driver != "memory" {
		t.Errorf("Datastore.Driver = %v, want memory", cfg.Datastore.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
	if cfg.Filters.Collection != "filters" {
		t.Errorf("Filters.Collection = %v, want filters", cfg.Filters.Collection)
	}
	if cfg.Filters.CacheTTL.Duration != 5*time.Minute {
		t.Errorf("Filters.CacheTTL = %v, want 5m", cfg.Filters.CacheTTL.Duration)
	}
	if cfg.Auth.TokenTTL.Duration != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 24h", cfg.Auth.TokenTTL.Duration)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "villain.toml")
	content := `
[general]
name = "Test Site"
log_level = "debug"

[datastore]
driver = "sqlite"
path = "/tmp/villain-test.db"

[server]
port = 9000
read_timeout = "5s"

[requests]
path = "requests.yaml"

[bundles]
enabled = ["BasicBlog"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.General.Name != "Test Site" {
		t.Errorf("General.Name = %v", cfg.General.Name)
	}
	if cfg.Datastore.Driver != "sqlite" || cfg.Datastore.Path != "/tmp/villain-test.db" {
		t.Errorf("Datastore = %+v", cfg.Datastore)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %v", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("Server.ReadTimeout = %v", cfg.Server.ReadTimeout.Duration)
	}
	if len(cfg.Bundles.Enabled) != 1 || cfg.Bundles.Enabled[0] != "BasicBlog" {
		t.Errorf("Bundles.Enabled = %v", cfg.Bundles.Enabled)
	}
	if got := cfg.ResolvePath(cfg.Requests.Path); got != filepath.Join(dir, "requests.yaml") {
		t.Errorf("ResolvePath() = %v", got)
	}
	if cfg.ResolvePath("/abs/path") != "/abs/path" {
		t.Error("absolute paths must not be rewritten")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/villain.toml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[general\nname="), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(bad)
	if !verrors.HasCode(err, verrors.CodeConfiguration) {
		t.Errorf("parse error should be a configuration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Datastore.Driver = "mongo" }, true},
		{"postgres without url", func(c *Config) { c.Datastore.Driver = "postgres" }, true},
		{"postgres with url", func(c *Config) {
			c.Datastore.Driver = "postgres"
			c.Datastore.URL = "postgres://localhost/villain"
		}, false},
		{"sqlite without path", func(c *Config) {
			c.Datastore.Driver = "sqlite"
			c.Datastore.Path = ""
		}, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_SQLitePathFollowsDataDir(t *testing.T) {
	t.Setenv("VILLAIN_DATA_DIR", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "villain.toml")
	content := "[general]\ndata_dir = \"./data\"\n\n[datastore]\ndriver = \"sqlite\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(dir, "data"); cfg.General.DataDir != want {
		t.Errorf("DataDir = %v, want %v", cfg.General.DataDir, want)
	}
	if want := filepath.Join(dir, "data", "villain.db"); cfg.Datastore.Path != want {
		t.Errorf("Datastore.Path = %v, want %v", cfg.Datastore.Path, want)
	}

	override := t.TempDir()
	t.Setenv("VILLAIN_DATA_DIR", override)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(override, "villain.db"); cfg.Datastore.Path != want {
		t.Errorf("Datastore.Path = %v, want %v", cfg.Datastore.Path, want)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	t.Setenv("VILLAIN_DATA_DIR", "")
	t.Setenv("VILLAIN_DATASTORE_DRIVER", "")

	path, err := filepath.Abs(filepath.Join("..", "..", "..", "configs", "villain.toml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "data", "villain.db")
	if cfg.Datastore.Path != want {
		t.Errorf("Datastore.Path = %v, want %v", cfg.Datastore.Path, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VILLAIN_LOG_LEVEL", "warn")
	t.Setenv("VILLAIN_HTTP_PORT", "8181")
	t.Setenv("VILLAIN_JWT_SECRET", "s3cret")
	t.Setenv(EnvConfigPath, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "villain.toml")
	if err := os.WriteFile(path, []byte("[general]\nlog_level = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.General.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", cfg.General.LogLevel)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Port = %v, want 8181", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %v", cfg.Auth.JWTSecret)
	}
}

func TestAddresses(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddress() != "0.0.0.0:8080" {
		t.Errorf("HTTPAddress() = %v", cfg.HTTPAddress())
	}
	if cfg.GRPCAddress() != "0.0.0.0:9090" {
		t.Errorf("GRPCAddress() = %v", cfg.GRPCAddress())
	}
}

func TestWatcher_ReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	if err := os.WriteFile(path, []byte("requests: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 4)
	w, err := NewWatcher(path, func(p string) { changed <- p }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("requests: {a: {}}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if filepath.Base(got) != "commands.yaml" {
			t.Errorf("changed path = %v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", nil, nil); err == nil {
		t.Error("expected error for empty path")
	}
}
