//go:build !windows

// Package shutdown wires OS termination signals to a channel so the main
// loop can close the websocket and flush logs before exiting.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
