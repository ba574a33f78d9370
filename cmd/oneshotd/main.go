// Package main provides the oneshot server daemon.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneshot-http/oneshot/pkg/oneshot"
)

func main() {
	config := oneshot.DefaultConfig()

	if addr := os.Getenv("ONESHOT_ADDR"); addr != "" {
		config.Addr = addr
	}

	// The daemon logs to stderr unless silenced
	if os.Getenv("ONESHOT_QUIET") != "1" {
		config.Logger = log.Default()
	}

	// Spread connections across all cores when requested
	if os.Getenv("ONESHOT_MULTICORE") == "1" {
		config.Multicore = true
		config.NumEventLoop = 0
		config.ReusePort = true
	}

	server := oneshot.New(config)

	// Start server in a separate goroutine
	go func() {
		log.Printf("listening on http://localhost%s", config.Addr)
		if err := server.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
