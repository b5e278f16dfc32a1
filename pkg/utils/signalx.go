package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignal blocks until SIGTERM/SIGINT arrives or ctx is done.
func WatchSignal(ctx context.Context) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalCh)

	select {
	case <-signalCh:
	case <-ctx.Done():
	}
}

// OnSignal calls fn for every delivery of sigs until ctx is done.
func OnSignal(ctx context.Context, fn func(os.Signal), sigs ...os.Signal) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, sigs...)
	go func() {
		defer signal.Stop(signalCh)
		for {
			select {
			case s := <-signalCh:
				fn(s)
			case <-ctx.Done():
				return
			}
		}
	}()
}
