package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrife/overworked/config"
	"github.com/jrife/overworked/server"
	"github.com/jrife/overworked/utils/log"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)

	if err != nil {
		return err
	}

	logger, err := log.New(log.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})

	if err != nil {
		return err
	}

	defer logger.Sync()

	host, err := server.NewHost(cfg, logger)

	if err != nil {
		logger.Error("could not start", zap.Error(err))

		return err
	}

	for _, name := range []string{server.FrontendREST, server.FrontendGRPC} {
		if addr := host.Addr(name); addr != nil {
			logger.Info("frontend bound", zap.String("frontend", name), zap.Stringer("address", addr))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := host.Run(ctx)

	if err := host.Close(); err != nil {
		logger.Warn("could not close cleanly", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("stopped", zap.Error(runErr))

		return runErr
	}

	logger.Info("stopped")

	return nil
}
