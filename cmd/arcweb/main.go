package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arcweb/cmd/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
