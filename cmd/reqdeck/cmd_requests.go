package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/output"
)

func (rt *runtime) list(cCtx *cli.Context) error {
	reqs, err := rt.app.Requests(cCtx.Context)
	if err != nil {
		return err
	}
	if cCtx.Bool("json") {
		return output.PrintJSON(rt.out, reqs)
	}
	selected, _ := rt.app.Selection().Get()
	output.PrintRequests(rt.out, reqs, selected)
	return nil
}

func (rt *runtime) add(cCtx *cli.Context) error {
	name := strings.Join(cCtx.Args().Slice(), " ")
	r, err := rt.app.AddRequest(cCtx.Context, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "Created #%d %s\n", r.ID, r.Name)
	return nil
}

func (rt *runtime) show(cCtx *cli.Context) error {
	id, err := rt.requestID(cCtx.Context, cCtx.Args().First())
	if err != nil {
		return err
	}
	r, err := rt.app.Load(cCtx.Context, id)
	if err != nil {
		return err
	}
	if cCtx.Bool("json") {
		return output.PrintJSON(rt.out, r)
	}
	output.PrintRequest(rt.out, r.Request, r.Latest)
	return nil
}

func (rt *runtime) selectRequest(cCtx *cli.Context) error {
	arg := strings.TrimSpace(strings.Join(cCtx.Args().Slice(), " "))
	if cCtx.Bool("clear") {
		rt.app.Selection().Clear()
		fmt.Fprintln(rt.out, "Selection cleared.")
		return nil
	}
	if arg == "" {
		return errdef.New(errdef.CodeValidation, "usage: reqdeck select <id|name>")
	}

	var target request.Request
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if err := rt.app.Select(cCtx.Context, id); err != nil {
			return err
		}
		r, err := rt.app.Request(cCtx.Context, id)
		if err != nil {
			return err
		}
		target = r.Request
	} else {
		if _, err := rt.app.Requests(cCtx.Context); err != nil {
			return err
		}
		matches := rt.app.FindRequests(arg)
		if len(matches) == 0 {
			return errdef.New(errdef.CodeNotFound, "no request matches %q", arg)
		}
		target = matches[0]
		if err := rt.app.Select(cCtx.Context, target.ID); err != nil {
			return err
		}
	}
	fmt.Fprintf(rt.out, "Selected #%d %s\n", target.ID, target.Label())
	return nil
}

func (rt *runtime) setURL(cCtx *cli.Context) error {
	return rt.edit(cCtx, 1, func(id int64) (request.Request, error) {
		return rt.app.SetURL(cCtx.Context, id, cCtx.Args().First())
	})
}

func (rt *runtime) setMethod(cCtx *cli.Context) error {
	return rt.edit(cCtx, 1, func(id int64) (request.Request, error) {
		return rt.app.SetMethod(cCtx.Context, id, cCtx.Args().First())
	})
}

func (rt *runtime) setBody(cCtx *cli.Context) error {
	body := cCtx.Args().First()
	if path := cCtx.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		body = string(data)
	}
	return rt.edit(cCtx, 0, func(id int64) (request.Request, error) {
		return rt.app.SetBody(cCtx.Context, id, body)
	})
}

func (rt *runtime) rename(cCtx *cli.Context) error {
	name := strings.Join(cCtx.Args().Slice(), " ")
	return rt.edit(cCtx, 1, func(id int64) (request.Request, error) {
		return rt.app.Rename(cCtx.Context, id, name)
	})
}

// edit runs fn against the --id request or the selected one and prints the
// stored result. want is the minimum number of positional arguments.
func (rt *runtime) edit(cCtx *cli.Context, want int, fn func(id int64) (request.Request, error)) error {
	if cCtx.NArg() < want {
		return errdef.New(errdef.CodeValidation, "usage: reqdeck %s %s", cCtx.Command.Name, cCtx.Command.ArgsUsage)
	}
	id, err := rt.requestID(cCtx.Context, cCtx.String("id"))
	if err != nil {
		return err
	}
	r, err := fn(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "Updated #%d %s\n", r.ID, r.Label())
	fmt.Fprintf(rt.out, "%s %s\n", r.Method, r.URL)
	return nil
}
