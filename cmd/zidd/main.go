package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file (default $"+config.EnvPath+")")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := injector.InitializeServer(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing server:", err)
		os.Exit(1)
	}
	defer cleanup()

	logger := log.Provide()
	logger.Info("zidd starting")

	if err = srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", log.Error(err))
		cleanup()
		os.Exit(1)
	}
	logger.Info("zidd stopped")
}
