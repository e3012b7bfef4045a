package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// RunServeCommand loads the configuration and serves the visualizations
// until interrupted.
func RunServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfigFile(*configPath)
	if err != nil {
		return err
	}
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("unknown log level %q, choices are [DEBUG, INFO, WARN, ERROR]", cfg.LogLevel)
	}

	srv, err := NewServer(cfg, NewPrometheusReporter())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("serving visualizations",
		"port", cfg.Server.Port, "basePath", cfg.Server.BasePath,
		"metricsPort", cfg.Metrics.Port, "metricsPath", cfg.Metrics.Path)
	return srv.Run(ctx)
}

func loadConfigFile(path string) (*Config, error) {
	var configReader io.ReadCloser
	if path != "" {
		var err error
		if configReader, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("can't open %s: %w", path, err)
		}
		defer configReader.Close()
	}
	cfg, err := LoadConfig(configReader)
	if err != nil {
		return nil, fmt.Errorf("wrong configuration: %w", err)
	}
	return cfg, nil
}
