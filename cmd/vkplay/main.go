package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "vkplay",
	Short:         "VK long-poll event client with a saved-audio player",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: "+filepath.Join(config.Dir(), "config.yaml")+")")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and returns it with the directory that
// holds the log, the library and the artwork cache.
func loadConfig() (*config.Config, string, error) {
	path := cfgPath
	if path == "" {
		path = filepath.Join(config.Dir(), "config.yaml")
	}
	dir := filepath.Dir(path)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", path, err)
		fmt.Fprintf(os.Stderr, "\nCreate the config file with:\n")
		fmt.Fprintf(os.Stderr, "  mkdir -p %s\n", dir)
		fmt.Fprintf(os.Stderr, "  cat > %s << 'EOF'\n", path)
		fmt.Fprintf(os.Stderr, "vk:\n  access_token: \"YOUR_TOKEN\"\nEOF\n")
		fmt.Fprintf(os.Stderr, "\nOr set %s in the environment.\n", config.TokenEnv)
		return nil, "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create config dir: %w", err)
	}
	return cfg, dir, nil
}

// newLogger logs to vkplay.log in dir at the configured level.
func newLogger(dir, level string) (*zap.Logger, error) {
	logPath := filepath.Join(dir, "vkplay.log")
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logCfg.Level = lvl
	return logCfg.Build()
}
