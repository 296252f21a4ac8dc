package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Host        string        `koanf:"host"`
		Port        int           `koanf:"port"`
		ReadTimeout time.Duration `koanf:"read_timeout"`
		RateLimit   struct {
			Burst int `koanf:"burst"`
		} `koanf:"rate_limit"`
	} `koanf:"server"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithEnvPrefix("TEST_"),
		WithConfigFile("/path/to/config.yaml"),
		WithFlags(map[string]any{"server.port": 1}),
	)

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.filePath != "/path/to/config.yaml" {
		t.Errorf("filePath = %q, want %q", l.filePath, "/path/to/config.yaml")
	}
	if len(l.flags) != 1 {
		t.Errorf("flags = %v, want one entry", l.flags)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 8080
log:
  level: debug
`)

	l := NewLoader()
	if err := l.loadFile(path); err != nil {
		t.Fatalf("loadFile() error = %v", err)
	}

	var cfg testConfig
	if err := l.unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	l := NewLoader()
	if err := l.loadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("loadFile() should return error for nonexistent file")
	}
}

func TestLoader_LoadFile_Invalid(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")

	l := NewLoader()
	if err := l.loadFile(path); err == nil {
		t.Error("loadFile() should return error for invalid YAML")
	}
}

func TestLoader_LoadFile_Empty(t *testing.T) {
	l := NewLoader()
	if err := l.loadFile(""); err != nil {
		t.Errorf("loadFile(\"\") should not error, got: %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LOG_LEVEL", "log.level"},
		{"SERVER_READ_TIMEOUT", "server.read_timeout"},
		{"SERVER_RATE_LIMIT__BURST", "server.rate_limit.burst"},
		{"STORAGE_BADGER__SYNC_WRITES", "storage.badger.sync_writes"},
		{"DEBUG", "debug"},
	}

	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("WEBDOCK_SERVER_HOST", "127.0.0.1")
	t.Setenv("WEBDOCK_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("WEBDOCK_SERVER_RATE_LIMIT__BURST", "7")

	l := NewLoader()
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.RateLimit.Burst != 7 {
		t.Errorf("Burst = %d, want 7", cfg.Server.RateLimit.Burst)
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want %d", cfg.Server.Port, 9090)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()

	data := map[string]any{
		"server.host":             "localhost",
		"server.rate_limit.burst": 3,
	}
	if err := l.loadMap(data); err != nil {
		t.Fatalf("loadMap() error = %v", err)
	}

	var cfg testConfig
	if err := l.unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal() error = %v", err)
	}
	if cfg.Server.RateLimit.Burst != 3 {
		t.Errorf("Burst = %d, want 3", cfg.Server.RateLimit.Burst)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("dotted map keys should nest, Host = %q", cfg.Server.Host)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  host: from-file
  port: 1000
log:
  level: warn
`)
	t.Setenv("WEBDOCK_SERVER_HOST", "from-env")
	t.Setenv("WEBDOCK_SERVER_PORT", "2000")

	l := NewLoader(
		WithConfigFile(path),
		WithFlags(map[string]any{"server.port": 3000}),
	)

	var cfg testConfig
	cfg.Log.Level = "info"
	cfg.Server.ReadTimeout = time.Minute
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "from-env" {
		t.Errorf("Host = %q, want from-env (env should override file)", cfg.Server.Host)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000 (flags should override env)", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn (file should override default)", cfg.Log.Level)
	}
	if cfg.Server.ReadTimeout != time.Minute {
		t.Errorf("ReadTimeout = %v, unset keys should keep their default", cfg.Server.ReadTimeout)
	}
}

func TestLoader_Load_FileError(t *testing.T) {
	l := NewLoader(WithConfigFile("/nonexistent/config.yaml"))
	var cfg testConfig
	if err := l.Load(&cfg); err == nil {
		t.Error("Load() should fail for a missing config file")
	}
}

func TestMapProvider_ReadBytes(t *testing.T) {
	if _, err := (mapProvider{}).ReadBytes(); err != ErrReadBytesNotSupported {
		t.Errorf("ReadBytes() error = %v, want ErrReadBytesNotSupported", err)
	}
}
