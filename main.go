package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clickregen/portal-workers/pkg/cli"
)

func main() {
	// Cancel on SIGINT/SIGTERM so the workers can stop between cycles
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, os.Args); err != nil {
		log.Printf("Error: %v", err)
		stop()
		os.Exit(1)
	}
}
