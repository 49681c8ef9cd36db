package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/output"
)

func (rt *runtime) send(cCtx *cli.Context) error {
	id, err := rt.requestID(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	entry, err := rt.app.Send(cCtx.Context, id)
	if err != nil && !errdef.Is(err, errdef.CodeTransport) {
		return err
	}
	// a transport failure was still recorded
	output.PrintEntry(rt.out, entry, cCtx.Bool("verbose"))
	return err
}

func (rt *runtime) history(cCtx *cli.Context) error {
	id, err := rt.requestID(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	entries, err := rt.app.History(cCtx.Context, id)
	if err != nil {
		return err
	}
	if cCtx.Bool("json") {
		return output.PrintJSON(rt.out, entries)
	}
	output.PrintHistory(rt.out, entries)
	return nil
}

func (rt *runtime) latest(cCtx *cli.Context) error {
	id, err := rt.requestID(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	e, err := rt.app.Latest(cCtx.Context, id)
	if err != nil {
		return err
	}
	if cCtx.Bool("json") {
		return output.PrintJSON(rt.out, e)
	}
	if e == nil {
		fmt.Fprintln(rt.out, "No executions yet.")
		return nil
	}
	output.PrintEntry(rt.out, *e, true)
	return nil
}
