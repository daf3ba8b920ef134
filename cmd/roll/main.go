// Package main is the entry point for the one-shot roll command.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	rollcmd "github.com/louisbranch/dicebot/internal/cmd/roll"
	"github.com/louisbranch/dicebot/internal/platform/config"
)

func main() {
	log.SetPrefix("[ROLL] ")
	cmd, err := rollcmd.NewCommand()
	if err != nil {
		config.Exitf("roll: parse env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := rollcmd.Execute(ctx, cmd, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}
