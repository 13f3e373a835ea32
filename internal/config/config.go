// Package config loads webcanvas settings from defaults, an optional YAML
// file and WEBCANVAS_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the CLI.
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

// EnvPrefix prefixes every environment override, e.g. WEBCANVAS_SERVER_ADDR.
const EnvPrefix = "WEBCANVAS"

// Config holds application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Painter PainterConfig `mapstructure:"painter"`
	Window  WindowConfig  `mapstructure:"window"`
	Store   StoreConfig   `mapstructure:"store"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// PainterConfig holds the synchronization engine timings.
type PainterConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	UpdateTimeout  time.Duration `mapstructure:"update_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// WindowConfig holds per-connection limits.
type WindowConfig struct {
	SendQueue       int           `mapstructure:"send_queue"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
}

// StoreConfig holds the trace database location. Empty disables tracing.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration. When path is empty, webcanvas.yaml is looked
// up in the working directory and in $HOME/.config/webcanvas, and a
// missing file is not an error. An explicit path must exist.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", "127.0.0.1:8765")
	v.SetDefault("painter.poll_interval", "50ms")
	v.SetDefault("painter.update_timeout", "30s")
	v.SetDefault("painter.command_timeout", "100s")
	v.SetDefault("window.send_queue", 16)
	v.SetDefault("window.max_message_bytes", 16<<20)
	v.SetDefault("window.ping_interval", "30s")
	v.SetDefault("store.path", "")

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("webcanvas")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "webcanvas"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Painter.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("painter.poll_interval must be positive, got %s", c.Painter.PollInterval))
	}
	if c.Painter.UpdateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("painter.update_timeout must be positive, got %s", c.Painter.UpdateTimeout))
	}
	if c.Painter.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("painter.command_timeout must be positive, got %s", c.Painter.CommandTimeout))
	}
	if c.Window.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("window.send_queue must be positive, got %d", c.Window.SendQueue))
	}
	if c.Window.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("window.max_message_bytes must be positive, got %d", c.Window.MaxMessageBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
