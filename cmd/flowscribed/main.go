package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mvonrenteln/FlowScribe-sub003/internal/config"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/engine"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/ipc"
	"github.com/mvonrenteln/FlowScribe-sub003/internal/logging"
)

const appVersion = "0.1.0"

func main() {
	var configFlag string
	flag.StringVar(&configFlag, "config", "", "Configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cfgPath, cfgExists, err := config.Load(configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, logPath, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "flowscribed-*.log", Exclude: []string{logPath}},
	)

	pidPath := buildPIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		log.Fatalf("write pid file: %v", err)
	}
	defer os.Remove(pidPath)

	opts := engine.Options{AppVersion: appVersion}
	if cfgExists {
		opts.ConfigPath = cfgPath
	}
	eng, err := engine.New(cfg, logger, opts)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to build engine", "engine_build_failed", logging.Error(err))
		os.Exit(1)
	}
	defer eng.Close()

	if err := eng.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "failed to start engine", "engine_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another flowscribed may already be running"))
		os.Exit(1)
	}
	defer eng.Stop()

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), eng, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to start IPC server", "ipc_start_failed", logging.Error(err))
		os.Exit(1)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	fmt.Fprintf(os.Stderr, "flowscribed %s listening on %s\n", appVersion, cfg.SocketPath())

	<-ctx.Done()
	logger.Info("flowscribed shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
}
