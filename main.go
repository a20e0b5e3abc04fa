package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrymomomedia/admachin-sub003/cmd"
)

func main() {
	// SIGINT/SIGTERM cancel the run context; in-flight work winds down and
	// the claimed task is left for a manual reset.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
