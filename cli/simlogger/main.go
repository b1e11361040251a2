// Package main is the CLI command itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.viam.com/utils"

	"go.viam.com/simlogger/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := cli.NewApp(os.Stdout, os.Stderr)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		_, printErr := fmt.Fprintln(os.Stderr, color.New(color.Bold, color.FgRed).Sprint("Error: ")+err.Error())
		utils.UncheckedError(printErr)
		os.Exit(1)
	}
}
