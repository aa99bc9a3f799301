package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danhigham/vkplay/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	cfgPath := writeConfig(t, `vk:
  access_token: "vk1.a.token"
  api_version: "5.199"
longpoll:
  wait: 10
  mode: 234
feed:
  addr: ":9000"
redis:
  url: redis://localhost:6379/0
library:
  cache_dir: /tmp/vkcache
log_level: debug
`)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.VK.AccessToken != "vk1.a.token" {
		t.Errorf("AccessToken = %q, want %q", cfg.VK.AccessToken, "vk1.a.token")
	}
	if cfg.VK.APIVersion != "5.199" {
		t.Errorf("APIVersion = %q, want %q", cfg.VK.APIVersion, "5.199")
	}
	if cfg.LongPoll.Wait != 10 {
		t.Errorf("Wait = %d, want 10", cfg.LongPoll.Wait)
	}
	if cfg.LongPoll.Mode != 234 {
		t.Errorf("Mode = %d, want 234", cfg.LongPoll.Mode)
	}
	if cfg.Feed.Addr != ":9000" {
		t.Errorf("Feed.Addr = %q, want %q", cfg.Feed.Addr, ":9000")
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Library.CacheDir != "/tmp/vkcache" {
		t.Errorf("CacheDir = %q, want %q", cfg.Library.CacheDir, "/tmp/vkcache")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	cfgPath := writeConfig(t, "vk:\n  access_token: abc\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Feed.Addr != "127.0.0.1:8765" {
		t.Errorf("Feed.Addr = %q", cfg.Feed.Addr)
	}
	if cfg.Redis.Prefix != "vk:" {
		t.Errorf("Redis.Prefix = %q, want %q", cfg.Redis.Prefix, "vk:")
	}
	if want := filepath.Join(filepath.Dir(cfgPath), "cache"); cfg.Library.CacheDir != want {
		t.Errorf("CacheDir = %q, want %q", cfg.Library.CacheDir, want)
	}
}

func TestLoadConfig_TokenFromEnv(t *testing.T) {
	t.Setenv(config.TokenEnv, "from-env")
	cfgPath := writeConfig(t, "vk:\n  access_token: from-file\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VK.AccessToken != "from-env" {
		t.Errorf("AccessToken = %q, want %q", cfg.VK.AccessToken, "from-env")
	}
}

func TestLoadConfig_EnvWithoutFile(t *testing.T) {
	t.Setenv(config.TokenEnv, "from-env")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.VK.AccessToken != "from-env" {
		t.Errorf("AccessToken = %q, want %q", cfg.VK.AccessToken, "from-env")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if want := filepath.Join(filepath.Dir(cfgPath), "cache"); cfg.Library.CacheDir != want {
		t.Errorf("CacheDir = %q, want %q", cfg.Library.CacheDir, want)
	}
}

func TestLoadConfig_FeedOff(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	cfgPath := writeConfig(t, "vk:\n  access_token: abc\nfeed:\n  addr: \"off\"\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Feed.Addr != "" {
		t.Errorf("Feed.Addr = %q, want empty", cfg.Feed.Addr)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	_, err := config.Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	cfgPath := writeConfig(t, "vk: [unclosed\n")
	if _, err := config.Load(cfgPath); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestConfigDir(t *testing.T) {
	dir := config.Dir()
	if dir == "" {
		t.Error("Dir() returned empty string")
	}
}
