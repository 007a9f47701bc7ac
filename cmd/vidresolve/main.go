package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	// An interrupted command has already reported what it was doing.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "vidresolve: %v\n", err)
	}
	os.Exit(1)
}
