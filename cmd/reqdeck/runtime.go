package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/sadopc/reqdeck/internal/app"
	"github.com/sadopc/reqdeck/internal/backend"
	"github.com/sadopc/reqdeck/internal/clock"
	"github.com/sadopc/reqdeck/internal/config"
	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/requests"
	"github.com/sadopc/reqdeck/internal/engine"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/logging"
	"github.com/sadopc/reqdeck/internal/protocol"
	httpclient "github.com/sadopc/reqdeck/internal/protocol/http"
	"github.com/sadopc/reqdeck/internal/storage"
	"github.com/sadopc/reqdeck/internal/telemetry"
)

const (
	// selectedKey is the settings key holding the selected request id.
	selectedKey = "selected_request"
	// noSelection is stored when the user cleared the selection.
	noSelection = "none"
)

// runtime holds everything a command needs. It is opened lazily so that
// help and version output never touch the database.
type runtime struct {
	out    io.Writer
	errOut io.Writer

	log      zerolog.Logger
	db       *sql.DB
	settings *storage.Settings
	tel      telemetry.Instrumenter
	app      *app.App
}

func (rt *runtime) action(fn func(*cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if err := rt.open(cCtx); err != nil {
			return err
		}
		defer rt.close()
		return fn(cCtx)
	}
}

func (rt *runtime) open(cCtx *cli.Context) error {
	path := cCtx.String("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if cCtx.IsSet("db") {
		cfg.DBPath = cCtx.String("db")
	}
	if cCtx.IsSet("log-level") {
		cfg.LogLevel = cCtx.String("log-level")
	}
	if cCtx.IsSet("timeout") {
		cfg.DefaultTimeout = cCtx.Duration("timeout")
	}

	rt.log, err = logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, rt.errOut)
	if err != nil {
		return err
	}

	headers, err := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	if err != nil {
		return err
	}
	rt.tel, err = telemetry.New(telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Headers:     headers,
	})
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}

	rt.db, err = storage.Open(cfg.DBPath)
	if err != nil {
		rt.shutdownTelemetry()
		return err
	}
	rt.settings = storage.NewSettings(rt.db)

	clk := clock.System()
	reqs := requests.NewStore(rt.db, clk)
	hist := history.NewStore(rt.db)

	client := httpclient.New()
	client.SetTimeout(cfg.DefaultTimeout)
	client.SetMaxBodyBytes(cfg.MaxResponseBytes)
	client.SetInsecure(cfg.Insecure)
	client.SetProxy(cfg.Proxy, cfg.NoProxy)

	eng := engine.New(reqs, hist,
		engine.WithRegistry(protocol.NewRegistry(client)),
		engine.WithClock(clk),
		engine.WithTimeout(cfg.DefaultTimeout),
		engine.WithLogger(rt.log),
		engine.WithTelemetry(rt.tel),
	)
	rt.app = app.New(backend.NewLocal(reqs, hist, eng, cfg.HistoryLimit), app.Config{
		StaleTime: cfg.StaleTime,
		Clock:     clk,
		Logger:    &rt.log,
	})

	if err := rt.restoreSelection(cCtx.Context); err != nil {
		rt.close()
		return err
	}
	rt.log.Debug().Str("db", cfg.DBPath).Msg("opened")
	return nil
}

// restoreSelection re-applies the selection saved by a previous invocation.
// A stale id is forgotten, leaving the first request to be picked.
func (rt *runtime) restoreSelection(ctx context.Context) error {
	v, ok, err := rt.settings.Get(ctx, selectedKey)
	if err != nil || !ok {
		return err
	}
	if v == noSelection {
		rt.app.Selection().Clear()
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return rt.settings.Delete(ctx, selectedKey)
	}
	err = rt.app.Select(ctx, id)
	if errdef.Is(err, errdef.CodeNotFound) {
		rt.log.Debug().Int64("request_id", id).Msg("dropping saved selection")
		return rt.settings.Delete(ctx, selectedKey)
	}
	return err
}

func (rt *runtime) close() {
	if rt.app != nil {
		rt.app.Wait()
		rt.saveSelection()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.log.Warn().Err(err).Msg("closing database failed")
		}
	}
	rt.shutdownTelemetry()
	rt.app, rt.db, rt.settings = nil, nil, nil
}

// saveSelection stores the selected id, or noSelection after an explicit
// clear. A selection still pending leaves the stored value alone.
func (rt *runtime) saveSelection() {
	sel := rt.app.Selection()
	v := noSelection
	if id, ok := sel.Get(); ok {
		v = strconv.FormatInt(id, 10)
	} else if sel.Pending() {
		return
	}
	if err := rt.settings.Put(context.Background(), selectedKey, v); err != nil {
		rt.log.Warn().Err(err).Msg("saving selection failed")
	}
}

func (rt *runtime) shutdownTelemetry() {
	if rt.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.tel.Shutdown(ctx); err != nil {
		rt.log.Warn().Err(err).Msg("flushing spans failed")
	}
	rt.tel = nil
}

// requestID resolves raw to a request id. An empty raw means the selected
// request, picking the first one when nothing was selected yet.
func (rt *runtime) requestID(ctx context.Context, raw string) (int64, error) {
	if raw != "" {
		return parseID(raw)
	}
	if _, err := rt.app.Requests(ctx); err != nil {
		return 0, err
	}
	id, ok := rt.app.Selection().Get()
	if !ok {
		return 0, errdef.New(errdef.CodeNotFound, "no request selected; create one with: reqdeck add <name>")
	}
	return id, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errdef.New(errdef.CodeValidation, "invalid request id %q", raw)
	}
	return id, nil
}

func parseIndex(raw string) (int, error) {
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, errdef.New(errdef.CodeValidation, "invalid parameter index %q", raw)
	}
	return i, nil
}
