// deskpilot - desktop pointer and keyboard automation
// Drives the local pointer and keyboard and serves remote control over HTTP,
// WebSocket and UDP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deskpilot/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	root := newRootCmd(newApp())
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
