package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/gateway"
)

var gatewayPort int
var gatewayLogDir string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the codesense gateway daemon",
	Long: `Starts the codesense gateway: a long-running daemon that accepts scan
requests over HTTP, runs configured cron schedules and streams progress.

Only one scan runs at a time; a second request while one is active is
rejected with 409 Conflict.

Quick API reference:
  GET  /health                         liveness check
  GET  /api/status                     gateway status snapshot
  GET  /api/health/scan                scan heartbeat (idle|alive|stuck)
  GET  /api/scans                      list recent scans
  POST /api/scans                      start a scan (body: {"path":"..."} or {"repo":"..."})
  GET  /api/scans/{id}                 scan progress
  GET  /api/scans/{id}/findings        paginated findings
  GET  /api/scans/{id}/severity        severity counts
  GET  /api/scans/{id}/raw             stored model answers
  GET  /api/schedules                  configured schedules
  POST /api/schedules/{name}/trigger   run a schedule now
  GET  /events                         SSE stream of live events
  GET  /metrics                        Prometheus metrics`,
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().IntVar(&gatewayPort, "port", 0,
		"HTTP port to listen on (default 6080, overrides config)")
	gatewayCmd.Flags().StringVar(&gatewayLogDir, "log-dir", "logs",
		"directory to write gateway logs for later inspection")
}

func runGateway(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFilePath, closeLog, err := setupGatewayFileLogger(gatewayLogDir)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if gatewayPort > 0 {
		cfg.Gateway.Port = gatewayPort
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 6080
	}

	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("codesense gateway starting\n")
	fmt.Printf("  Model      : %s / %s\n", svc.provider.Name(), cfg.AI.Model)
	fmt.Printf("  Workers    : %d\n", cfg.Scan.MaxFileWorkers)
	fmt.Printf("  Schedules  : %d\n", len(cfg.Schedules))
	fmt.Printf("  API        : http://127.0.0.1:%d\n", cfg.Gateway.Port)
	fmt.Printf("  Events     : http://127.0.0.1:%d/events\n", cfg.Gateway.Port)
	fmt.Printf("  Metrics    : http://127.0.0.1:%d/metrics\n", cfg.Gateway.Port)
	fmt.Printf("  Logs       : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println()

	slog.Info("Gateway logger initialised", "file", logFilePath)
	gw := gateway.New(cfg, gateway.Deps{
		Runner:    svc.runner,
		Store:     svc.store,
		Metrics:   svc.metrics,
		Cloner:    svc.cloner,
		Notifiers: svc.notifier.Channels(),
	})
	return gw.Start(ctx)
}

func setupGatewayFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("gateway-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "gateway.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
