package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brandon689/deskauth/auth"
	"github.com/Brandon689/deskauth/internal/config"
	"github.com/Brandon689/deskauth/internal/httpapi"
	"github.com/Brandon689/deskauth/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "createuser" {
		return createUser(args[1:], os.Stdin, int(os.Stdin.Fd()), os.Stderr)
	}
	return serve(args)
}

func serve(args []string) error {
	settings, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	logger := logging.New(os.Stdout, settings.LogLevel, settings.Environment)

	cfg := settings.Auth()
	cfg.Logger = logger
	api, err := auth.New(cfg)
	if err != nil {
		if errors.Is(err, auth.ErrStorageUnavailable) {
			logger.Error(context.Background(), "database unavailable", "data_dir", settings.DataDir, "error", err)
		}
		return err
	}
	defer api.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	initSignalHandler(cancel)

	srv := httpapi.New(api, settings, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(settings.Addr()) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

func initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancel()
	}()
}
