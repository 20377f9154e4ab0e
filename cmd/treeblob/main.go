package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	if err := a.execute(ctx, os.Args[1:]); err != nil {
		a.root.PrintErrln("Error:", err)
		stop()
		os.Exit(1)
	}
}
