package main

import (
	"github.com/urfave/cli/v2"

	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/output"
)

func (rt *runtime) params(cCtx *cli.Context) error {
	id, err := rt.requestID(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	r, err := rt.app.Request(cCtx.Context, id)
	if err != nil {
		return err
	}
	output.PrintParams(rt.out, r.Params())
	return nil
}

func (rt *runtime) setParam(cCtx *cli.Context) error {
	if cCtx.NArg() < 2 {
		return errdef.New(errdef.CodeValidation, "usage: reqdeck set-param [--key K] [--value V] <id> <index>")
	}
	id, err := parseID(cCtx.Args().Get(0))
	if err != nil {
		return err
	}
	index, err := parseIndex(cCtx.Args().Get(1))
	if err != nil {
		return err
	}

	var key, value *string
	if cCtx.IsSet("key") {
		k := cCtx.String("key")
		key = &k
	}
	if cCtx.IsSet("value") {
		v := cCtx.String("value")
		value = &v
	}
	if key == nil && value == nil {
		return errdef.New(errdef.CodeValidation, "nothing to change: pass --key and/or --value")
	}

	r, err := rt.app.SetParam(cCtx.Context, id, index, key, value)
	if err != nil {
		return err
	}
	rt.printParams(r)
	return nil
}

func (rt *runtime) addParam(cCtx *cli.Context) error {
	if cCtx.NArg() < 1 {
		return errdef.New(errdef.CodeValidation, "usage: reqdeck add-param [--id ID] <key> [value]")
	}
	id, err := rt.requestID(cCtx.Context, cCtx.String("id"))
	if err != nil {
		return err
	}
	r, err := rt.app.AddParam(cCtx.Context, id, cCtx.Args().Get(0), cCtx.Args().Get(1))
	if err != nil {
		return err
	}
	rt.printParams(r)
	return nil
}

func (rt *runtime) removeParam(cCtx *cli.Context) error {
	if cCtx.NArg() < 1 {
		return errdef.New(errdef.CodeValidation, "usage: reqdeck rm-param [--id ID] <index>")
	}
	id, err := rt.requestID(cCtx.Context, cCtx.String("id"))
	if err != nil {
		return err
	}
	index, err := parseIndex(cCtx.Args().First())
	if err != nil {
		return err
	}
	r, err := rt.app.RemoveParam(cCtx.Context, id, index)
	if err != nil {
		return err
	}
	rt.printParams(r)
	return nil
}

func (rt *runtime) printParams(r request.Request) {
	output.PrintParams(rt.out, r.Params())
}
