// Package cli contains all business logic needed by the simlogger CLI.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
)

const (
	generalFlagDebug    = "debug"
	generalFlagLogLevel = "log-level"

	replayFlagWorkspace    = "workspace"
	replayFlagOutputDir    = "output-dir"
	replayFlagLatestRun    = "latest-run"
	replayFlagTicks        = "ticks"
	replayFlagObjects      = "objects"
	replayFlagStep         = "step"
	replayFlagRealtime     = "realtime-factor"
	replayFlagSampleEvery  = "sample-every"
	replayFlagCollideEvery = "collide-every"
	replayFlagRenderFPS    = "render-fps"

	inspectFlagRows = "rows"
)

// NewApp returns the simlogger CLI writing to out and errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "simlogger",
		Usage:           "record and inspect simulator telemetry CSV files",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging, same as --log-level debug",
			},
			&cli.StringFlag{
				Name:    generalFlagLogLevel,
				Usage:   "plugin log level: debug, info, warn or error",
				EnvVars: []string{"SIMLOGGER_LOG_LEVEL"},
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "drive the logger against a synthetic scene and write a telemetry file",
				UsageText: "simlogger replay [--workspace DIR] [--ticks N] [--objects M] [other options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    replayFlagWorkspace,
						Usage:   "workspace whose logs directory receives the file",
						EnvVars: []string{"NAAD_WS_DIR"},
					},
					&cli.StringFlag{
						Name:  replayFlagOutputDir,
						Usage: "directory replacing <workspace>/logs",
					},
					&cli.BoolFlag{
						Name:  replayFlagLatestRun,
						Usage: "write into the most recent run directory instead of a timestamped file",
					},
					&cli.IntFlag{
						Name:  replayFlagTicks,
						Usage: "number of primary simulation ticks to run",
						Value: 500,
					},
					&cli.IntFlag{
						Name:  replayFlagObjects,
						Usage: "number of objects besides the collision target",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  replayFlagStep,
						Usage: "simulation time step",
						Value: 50 * time.Millisecond,
					},
					&cli.Float64Flag{
						Name:  replayFlagRealtime,
						Usage: "simulated seconds per wall clock second",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  replayFlagSampleEvery,
						Usage: "ticks between two rows, defaults to SIMLOGGER_SAMPLE_EVERY or 50",
					},
					&cli.IntFlag{
						Name:  replayFlagCollideEvery,
						Usage: "make the collision target collide on every Kth tick, 0 disables collisions",
					},
					&cli.Float64Flag{
						Name:  replayFlagRenderFPS,
						Usage: "report this render frame rate, 0 leaves the column empty",
					},
				},
				Action: ReplayAction,
			},
			{
				Name:      "inspect",
				Usage:     "summarize a telemetry file",
				UsageText: "simlogger inspect [--rows] FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  inspectFlagRows,
						Usage: "also print every row",
					},
				},
				Action: InspectAction,
			},
			{
				Name:   "header",
				Usage:  "print the telemetry file header",
				Action: HeaderAction,
			},
		},
	}
}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	_, err := fmt.Fprintf(w, format+"\n", a...)
	utils.UncheckedError(err)
}

// infof prints a message prefixed with a bold cyan "Info: ".
func infof(w io.Writer, format string, a ...interface{}) {
	_, err := fmt.Fprintf(w, color.New(color.Bold, color.FgCyan).Sprint("Info: ")+format+"\n", a...)
	utils.UncheckedError(err)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	_, err := fmt.Fprintf(w, color.New(color.Bold, color.FgYellow).Sprint("Warning: ")+format+"\n", a...)
	utils.UncheckedError(err)
}
