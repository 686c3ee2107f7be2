package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"colorbot/internal/command"
	"colorbot/internal/screenshot"
)

func main() {
	if err := screenshot.SuppressXGBLogs(); err != nil {
		log.Fatalf("Failed to suppress xgb logs: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.DefaultDeps())
	if err := app.RunContext(rootCtx, os.Args); err != nil {
		log.Printf("colorbot failed: %v", err)
		stop()
		os.Exit(1)
	}
}
