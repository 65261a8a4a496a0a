// v1
// cmd/edge-agent/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/app"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/config"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/logging"
	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/shutdown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrUsage) {
		fmt.Fprintln(stdout, config.Usage)
		return 0
	}
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		return 1
	}

	logger, logCloser := logging.New(logging.Options{FilePath: cfg.LogFilePath, Level: cfg.LogLevel})
	defer func() {
		_ = logCloser.Close()
	}()

	agent, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("agent_init_failed", slog.Any("err", err))
		return 1
	}
	guard := agent.Guard()
	// Exit hook; a no-op when the signal task already disconnected.
	defer func() {
		_ = guard.Disconnect()
	}()

	logger.Info("agent_boot",
		slog.String("agent_id", agent.ID()),
		slog.String("address", cfg.Address),
		slog.Bool("simulated", cfg.Simulated),
		slog.Int("devices", len(cfg.Devices)),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("properties_path", cfg.PropertiesPath),
		slog.String("kafka_brokers", strings.Join(cfg.KafkaBrokers, ",")),
		slog.String("influx_url", cfg.InfluxURL),
	)

	ctx, stop := shutdown.Watch(context.Background(), guard, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil {
		logger.Error("agent_terminated", slog.Any("err", err))
		return 1
	}
	logger.Info("agent_stopped")
	return 0
}
