// Command tickrunner-demo runs a scripted scene on a tick driver and
// optionally exposes its metrics to Prometheus.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "tickrunner-demo",
		Usage: "Drive named tick queues from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"TICKRUNNER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
