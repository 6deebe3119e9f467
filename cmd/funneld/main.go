package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"funnel/internal/config"
	"funnel/internal/executor"
	"funnel/internal/logging"
	"funnel/internal/queue"
	"funnel/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.WorkerLogPath()},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     cfg.Paths.LogDir,
		Pattern: "worker.log.*",
		Exclude: []string{cfg.WorkerLogPath()},
	})

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		os.Exit(1)
	}

	exec, err := executor.NewSQLite(cfg)
	if err != nil {
		logger.Error("open datastore", logging.Error(err))
		os.Exit(1)
	}
	defer exec.Close()

	w := worker.New(cfg, store, exec, logger)
	if err := w.Run(ctx); err != nil {
		// A live instance already covers the queue; exiting clean keeps
		// enqueue autostart race-free.
		if errors.Is(err, worker.ErrAlreadyRunning) {
			logger.Info("worker already running elsewhere; exiting")
			return
		}
		logger.Error("worker run", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("funneld shut down")
}
