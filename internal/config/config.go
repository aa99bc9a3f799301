package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TokenEnv overrides vk.access_token when set.
const TokenEnv = "VKPLAY_ACCESS_TOKEN"

type Config struct {
	VK       VKConfig       `yaml:"vk"`
	LongPoll LongPollConfig `yaml:"longpoll"`
	Feed     FeedConfig     `yaml:"feed"`
	Redis    RedisConfig    `yaml:"redis"`
	Library  LibraryConfig  `yaml:"library"`
	LogLevel string         `yaml:"log_level"`
}

type VKConfig struct {
	AccessToken string `yaml:"access_token"`
	APIURL      string `yaml:"api_url"`
	APIVersion  string `yaml:"api_version"`
}

type LongPollConfig struct {
	Wait    int `yaml:"wait"`
	Mode    int `yaml:"mode"`
	Version int `yaml:"version"`
}

// FeedOff as feed.addr disables the WebSocket feed.
const FeedOff = "off"

type FeedConfig struct {
	// Addr is the listen address of the WebSocket feed. Empty after Load
	// means the feed is disabled.
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	// URL enables the Redis mirror, e.g. redis://localhost:6379/0.
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type LibraryConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "vkplay")
}

// Load reads the config file at path. A missing file is not an error when
// the access token comes from TokenEnv; defaults apply to everything else.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err) && os.Getenv(TokenEnv) != "":
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.VK.AccessToken = tok
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.Feed.Addr {
	case "":
		cfg.Feed.Addr = "127.0.0.1:8765"
	case FeedOff:
		cfg.Feed.Addr = ""
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "vk:"
	}
	if cfg.Library.CacheDir == "" {
		cfg.Library.CacheDir = filepath.Join(filepath.Dir(path), "cache")
	}

	return &cfg, nil
}
