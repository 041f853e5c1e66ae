// Package config loads deployment defaults for the CLI from an optional
// ghinstall.yaml file and GHINSTALL_* environment variables. Flags always win
// over config values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tunable defaults of the tool.
type Config struct {
	DownloadFilename string      `mapstructure:"download-filename"`
	DownloadPath     string      `mapstructure:"download-path"`
	ExtractPath      string      `mapstructure:"extract-path"`
	Fetch            FetchConfig `mapstructure:"fetch"`
}

// FetchConfig holds the retry policy of the download collaborator.
type FetchConfig struct {
	Retries   int           `mapstructure:"retries"`
	RetryWait time.Duration `mapstructure:"retry-wait"`
}

// Load reads configuration from the given directories, or from
// ~/.ghinstall and the working directory when none are given. A missing
// config file is not an error; defaults apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("ghinstall")
	v.SetConfigType("yaml")

	if len(paths) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".ghinstall"))
		}
		paths = append(paths, ".")
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix("GHINSTALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download-filename", "github-source.zip")
	v.SetDefault("download-path", "/tmp")
	v.SetDefault("extract-path", "/tmp/extracted")
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.retry-wait", "2s")
}
