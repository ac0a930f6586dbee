package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	logger := log.New(os.Stderr, "[downsize] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(logger)
	cmd.SetArgs(normalizeSizeArgs(os.Args[1:]))
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Printf("error: %v", err)
		stop()
		os.Exit(1)
	}
}
