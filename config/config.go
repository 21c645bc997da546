package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port             int     `toml:"port"`
	HTTPPort         int     `toml:"http_port"`
	DBPath           string  `toml:"db_path"`
	StorageDir       string  `toml:"storage_dir"`
	PublicURL        string  `toml:"public_url"`        // base for public object URLs
	ReadTimeout      int     `toml:"read_timeout"`      // seconds
	WriteTimeout     int     `toml:"write_timeout"`     // seconds
	PresenceInterval int     `toml:"presence_interval"` // seconds between presence snapshots
	SendRate         float64 `toml:"send_rate"`         // inserts per second per session
	SendBurst        int     `toml:"send_burst"`
	ControlSocket    string  `toml:"control_socket"`
	LogLevel         string  `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		Port:             3215,
		HTTPPort:         3216,
		DBPath:           "neuralchat.db",
		StorageDir:       "storage",
		ReadTimeout:      120,
		WriteTimeout:     30,
		PresenceInterval: 30,
		SendRate:         5,
		SendBurst:        10,
		ControlSocket:    "/tmp/neuralchat.sock",
		LogLevel:         "info",
	}
}

// Load reads defaults, then the TOML file named by NCHAT_CONFIG (if any),
// then NCHAT_* environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("NCHAT_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	envInt("NCHAT_PORT", &cfg.Port)
	envInt("NCHAT_HTTP_PORT", &cfg.HTTPPort)
	envString("NCHAT_DB_PATH", &cfg.DBPath)
	envString("NCHAT_STORAGE_DIR", &cfg.StorageDir)
	envString("NCHAT_PUBLIC_URL", &cfg.PublicURL)
	envInt("NCHAT_READ_TIMEOUT", &cfg.ReadTimeout)
	envInt("NCHAT_WRITE_TIMEOUT", &cfg.WriteTimeout)
	envInt("NCHAT_PRESENCE_INTERVAL", &cfg.PresenceInterval)
	envInt("NCHAT_SEND_BURST", &cfg.SendBurst)
	envString("NCHAT_CONTROL_SOCKET", &cfg.ControlSocket)
	envString("NCHAT_LOG_LEVEL", &cfg.LogLevel)

	if rateStr := os.Getenv("NCHAT_SEND_RATE"); rateStr != "" {
		if r, err := strconv.ParseFloat(rateStr, 64); err == nil {
			cfg.SendRate = r
		}
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:" + strconv.Itoa(cfg.HTTPPort)
	}

	return cfg, nil
}

func envInt(key string, dst *int) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			*dst = v
		}
	}
}

func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}
