package main

import (
	"flag"
	"fmt"
	"os"

	"neuralchat/client/settings"
	"neuralchat/client/ui"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	serverAddr := flag.String("server", "", "realtime endpoint (host:port or ws:// URL)")
	storageURL := flag.String("storage", "", "object store base URL")
	timeout := flag.Duration("timeout", 0, "per-request timeout")
	flag.Parse()

	dir, err := settings.Dir()
	if err != nil {
		fatal(err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fatal(err)
	}

	cfg, err := settings.LoadConfig(dir)
	if err != nil {
		fatal(err)
	}
	if *serverAddr != "" {
		cfg.Server = *serverAddr
	}
	if *storageURL != "" {
		cfg.Storage = *storageURL
	}
	if *timeout > 0 {
		cfg.Timeout.Duration = *timeout
	}

	// the terminal belongs to the UI, so logs go to a file
	logFile, err := os.OpenFile(settings.LogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fatal(err)
	}
	defer logFile.Close()

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()

	log.Info().Str("server", cfg.Server).Str("storage", cfg.Storage).Msg("client starting")

	app := ui.NewApp(cfg, settings.NewStore(dir))
	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("ui exited")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
