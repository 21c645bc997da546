// Package settings holds the client's connection config and display
// preferences, both stored as TOML under ~/.neuralchat.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	configFile = "config.toml"
	prefsFile  = "prefs.toml"
	logFile    = "client.log"
)

type Config struct {
	Server   string   `toml:"server"`  // host:port or ws(s):// URL of the realtime endpoint
	Storage  string   `toml:"storage"` // base URL of the object store
	Timeout  duration `toml:"timeout"` // per-request timeout
	LogLevel string   `toml:"log_level"`
}

// duration decodes TOML strings like "10s".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func DefaultConfig() Config {
	return Config{
		Server:   "localhost:3215",
		Storage:  "http://localhost:3216",
		Timeout:  duration{10 * time.Second},
		LogLevel: "info",
	}
}

// RequestTimeout is the configured timeout, never zero.
func (c Config) RequestTimeout() time.Duration {
	if c.Timeout.Duration <= 0 {
		return 10 * time.Second
	}
	return c.Timeout.Duration
}

// Dir is ~/.neuralchat, or $NCHAT_HOME when set.
func Dir() (string, error) {
	if dir := os.Getenv("NCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".neuralchat"), nil
}

// LogPath is where the client writes its log.
func LogPath(dir string) string {
	return filepath.Join(dir, logFile)
}

// LoadConfig reads dir/config.toml over the defaults. A missing file is
// not an error.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(dir, configFile)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
