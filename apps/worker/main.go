package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ps965xx7vn-lgtm/backend-sub002/apps/di"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

func main() {
	conf := core.NewConfig()
	c, err := di.New(conf, di.Options{Name: "worker", Migrate: true})
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer c.Close()

	c.Logger.Info(fmt.Sprintf("Worker initializing : %s", conf))
	defer c.Logger.Info("Worker stopped")

	// =========================================================================
	// Start Relay

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		errs <- c.Outbox.Run(ctx)
	}()

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-errs:
		if err != nil {
			c.Logger.Error("relay stopped", err)
		}

	case sig := <-shutdown:
		c.Logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel()
		if err = <-errs; err != nil {
			c.Logger.Error("relay stopped", err)
		}
	}
}
