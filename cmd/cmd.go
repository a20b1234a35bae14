package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"calboard/internal/config"
)

// A command either returns when its work is done or, for daemons, keeps
// running until ctx is cancelled.
type command func(ctx context.Context)

type commandRegistry map[string]command

var commands = commandRegistry{
	"noop":    noopCmd,
	"sync":    syncCmd,
	"refresh": refreshCmd,
	"expand":  expandCmd,
	"delete":  deleteCmd,
	"update":  updateCmd,
}

func Run() {
	cmd := config.Gist().String(config.CMD)
	cmdFn, ok := commands[cmd]
	if !ok {
		help()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmdFn(ctx)
}

func help() {
	fmt.Println("Usage: calboard --cmd [command]")
	fmt.Println("Commands: noop, sync, refresh, expand, delete, update")
	fmt.Println("Example: calboard --cmd expand --expand.days 14")
	fmt.Println("Config params (name|required|default):\v")
	fmt.Println(config.Sprint())
}
