// cmd/broker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/streambroker/internal/broker"
	"github.com/flowforge/streambroker/internal/config"
	"github.com/flowforge/streambroker/internal/logging"
	"github.com/flowforge/streambroker/internal/monitoring"
	"github.com/flowforge/streambroker/internal/retention"
	"github.com/flowforge/streambroker/internal/sysinfo"
	"github.com/flowforge/streambroker/internal/tcp"
)

func main() {
	cfg := config.Default()
	configPath := os.Getenv("CONFIG_PATH")
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if dataPath := os.Getenv("DATA_PATH"); dataPath != "" {
		cfg.Server.DataPath = dataPath
	}
	if addr := os.Getenv("TCP_ADDR"); addr != "" {
		cfg.Server.TCPAddr = addr
	}
	if addr := os.Getenv("MONITORING_ADDR"); addr != "" {
		cfg.Server.MonitoringAddr = addr
	}

	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(sysinfo.ReadMemory, func(msg string, args ...any) {
		logger.Warn(fmt.Sprintf(msg, args...))
	}); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Server.DataPath, 0o750); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	b, err := broker.Open(cfg.Server.DataPath, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open broker", zap.Error(err))
	}
	logger.Info("broker opened", zap.String("data_path", cfg.Server.DataPath), zap.Strings("streams", b.StreamNames()))

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg, logger)
		if err != nil {
			logger.Warn("config hot-reload unavailable", zap.Error(err))
		} else {
			defer func() { _ = watcher.Close() }()
			b.SetRetentionExpirySource(watcher.MessageExpiry)
		}
	}

	var cleaner *retention.Cleaner
	if cfg.MessageCleaner.Enabled {
		cleaner = retention.NewCleaner(cfg.MessageCleaner.Interval, b.Sweepers, logger)
		cleaner.Start()
		logger.Info("message cleaner started", zap.Duration("interval", cfg.MessageCleaner.Interval))
	}

	var saver *retention.Saver
	if cfg.MessageSaver.Enabled {
		saver = retention.NewSaver(cfg.MessageSaver.Interval, b.Flushers, logger)
		saver.Start()
		logger.Info("message saver started", zap.Duration("interval", cfg.MessageSaver.Interval))
	}

	monitor := monitoring.New(cfg.Server.MonitoringAddr, b.Ready, logger)
	monitor.Start()

	server, err := tcp.Listen(cfg.Server.TCPAddr, b, logger)
	if err != nil {
		logger.Fatal("failed to open TCP listener", zap.Error(err))
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_ = server.Close()
		if cleaner != nil {
			cleaner.Stop()
		}
		if saver != nil {
			saver.Stop()
		}
		_ = monitor.Shutdown(ctx)
		os.Exit(0)
	}()

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════╗\n")
	fmt.Printf("║         streambroker started          ║\n")
	fmt.Printf("╠══════════════════════════════════════╣\n")
	fmt.Printf("║  Wire:       %-26s ║\n", cfg.Server.TCPAddr)
	fmt.Printf("║  Monitoring: %-26s ║\n", cfg.Server.MonitoringAddr)
	fmt.Printf("║  Data path:  %-26s ║\n", cfg.Server.DataPath)
	fmt.Printf("╚══════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if err := server.Serve(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
