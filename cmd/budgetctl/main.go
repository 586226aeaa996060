package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"budget/internal/cli"
	applog "budget/internal/log"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	env := &cli.Env{
		Out: os.Stdout,
		Err: os.Stderr,
		Open: func(ctx context.Context) (*cli.Ledger, error) {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return nil, err
			}
			logger, err := cli.SetupLogger(cfg, applog.ComponentCLI)
			if err != nil {
				return nil, err
			}
			return cli.OpenLedger(ctx, cfg, logger)
		},
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cli.Register(commander, env)

	flag.Parse()

	ctx, stop := cli.SignalContext(context.Background())
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
