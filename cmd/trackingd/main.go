// Command trackingd runs the eye-tracking backend: it loads the tracker
// configuration, builds the per-tracker capture/detect/transmit pipelines,
// and serves the REST control plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/orchestrator"
	"github.com/etvr-go/trackingd/internal/restapi"
)

const (
	success = 0
	failure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		host       string
		port       int
		configPath string
		logLevel   string
	)

	flag.StringVar(&host, "host", "127.0.0.1", "bind address for the REST control plane")
	flag.IntVar(&port, "port", 8000, "bind port for the REST control plane")
	flag.StringVar(&configPath, "config", defaultConfigPath(), "path to the tracker configuration document")
	flag.StringVar(&logLevel, "log-level", "info", "log output level (debug, info, warn, error)")
	flag.Parse()

	zerolog.TimestampFunc = time.Now
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Error().Str("level", logLevel).Err(err).Msg("could not parse log level")
		return failure
	}
	log = log.Level(level)

	store, err := config.Open(configPath, log)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("could not open configuration")
		return failure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := store.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("config file watcher exited")
		}
	}()

	orch := orchestrator.New(store, log)
	if err := orch.Start(ctx); err != nil {
		log.Error().Err(err).Msg("could not start orchestrator")
		return failure
	}

	server := restapi.New(orch, log)
	addr := fmt.Sprintf("%s:%d", host, port)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start(addr) }()

	log.Info().Str("addr", addr).Msg("serving")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("control plane server stopped")
		}
	}

	if err := orch.Stop(); err != nil {
		log.Warn().Err(err).Msg("error stopping orchestrator")
	}
	return success
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(dir, "trackingd", "config.json")
}
