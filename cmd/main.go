package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/orpheus-edu/orpheus-core/internal/app"
)

func main() {
	// Optional in deployments, handy for local runs.
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	a.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.Cfg.Port
		a.Log.Info("server listening", "addr", addr)
		errCh <- a.Run(addr)
	}()

	select {
	case sig := <-sigCh:
		a.Log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			a.Log.Error("server failed", "error", err)
		}
	}
	a.Close()
}
