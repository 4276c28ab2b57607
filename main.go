package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/tray.png
var trayIconBytes []byte

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
