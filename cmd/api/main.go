package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/ledgerbook/internal/cli"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
)

func main() {
	flags, err := cli.ParseServeFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadOrEnv_WithPath(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}
