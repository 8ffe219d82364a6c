package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/metricdeck/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return cli.Execute(ctx)
}
