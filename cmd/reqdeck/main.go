package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newCLI(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func newCLI(out, errOut io.Writer) *cli.App {
	rt := &runtime{out: out, errOut: errOut}

	return &cli.App{
		Name:                 "reqdeck",
		Usage:                "Save, edit and send HTTP requests from the terminal",
		Version:              version,
		Writer:               out,
		ErrWriter:            errOut,
		EnableBashCompletion: true,
		// errors are printed by main
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
				EnvVars: []string{"REQDECK_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "path to the sqlite database (overrides db_path)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn, error or disabled",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout (overrides default_timeout)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved requests",
				Flags:  []cli.Flag{jsonFlag()},
				Action: rt.action(rt.list),
			},
			{
				Name:      "add",
				Usage:     "Create a request",
				ArgsUsage: "<name>",
				Action:    rt.action(rt.add),
			},
			{
				Name:      "show",
				Usage:     "Show a request with its latest response",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    rt.action(rt.show),
			},
			{
				Name:      "select",
				Usage:     "Select the active request by id or fuzzy name",
				ArgsUsage: "<id|name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "clear", Usage: "leave no request selected"},
				},
				Action: rt.action(rt.selectRequest),
			},
			{
				Name:      "set-url",
				Usage:     "Replace the request URL",
				ArgsUsage: "<url>",
				Flags:     []cli.Flag{idFlag()},
				Action:    rt.action(rt.setURL),
			},
			{
				Name:      "set-method",
				Usage:     "Change the HTTP method",
				ArgsUsage: "<GET|POST|PUT|DELETE|PATCH>",
				Flags:     []cli.Flag{idFlag()},
				Action:    rt.action(rt.setMethod),
			},
			{
				Name:      "set-body",
				Usage:     "Replace the request body",
				ArgsUsage: "[body]",
				Flags: []cli.Flag{
					idFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "read the body from a file"},
				},
				Action: rt.action(rt.setBody),
			},
			{
				Name:      "rename",
				Usage:     "Rename a request",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{idFlag()},
				Action:    rt.action(rt.rename),
			},
			{
				Name:      "params",
				Usage:     "List the query parameters of a request",
				ArgsUsage: "[id]",
				Action:    rt.action(rt.params),
			},
			{
				Name:      "set-param",
				Usage:     "Change the key and/or value of a query parameter",
				ArgsUsage: "<id> <index>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "new key"},
					&cli.StringFlag{Name: "value", Aliases: []string{"v"}, Usage: "new value"},
				},
				Action: rt.action(rt.setParam),
			},
			{
				Name:      "add-param",
				Usage:     "Append a query parameter",
				ArgsUsage: "<key> [value]",
				Flags:     []cli.Flag{idFlag()},
				Action:    rt.action(rt.addParam),
			},
			{
				Name:      "rm-param",
				Usage:     "Remove a query parameter",
				ArgsUsage: "<index>",
				Flags:     []cli.Flag{idFlag()},
				Action:    rt.action(rt.removeParam),
			},
			{
				Name:      "send",
				Usage:     "Execute a request and record the response",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "print the response body"},
				},
				Action: rt.action(rt.send),
			},
			{
				Name:      "history",
				Usage:     "List past executions, newest first",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    rt.action(rt.history),
			},
			{
				Name:      "latest",
				Usage:     "Show the most recent execution",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    rt.action(rt.latest),
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "print JSON"}
}

func idFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Usage: "request id (defaults to the selected request)"}
}
