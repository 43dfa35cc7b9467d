package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		if ce, ok := err.(interface{ Quiet() bool }); !ok || !ce.Quiet() {
			fmt.Fprintln(os.Stderr, "kitcat:", err)
		}
		os.Exit(exitCode(err))
	}
}
