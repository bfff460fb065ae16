package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"taskboard/internal/cli"
	"taskboard/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	// Keep stdout for JSON output.
	logger.SetOutput(os.Stderr, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Env{Stdout: os.Stdout, Stderr: os.Stderr})
	stop()
	os.Exit(code)
}
