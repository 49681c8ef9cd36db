// Package engine executes saved requests and records every execution in the
// history log.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sadopc/reqdeck/internal/clock"
	"github.com/sadopc/reqdeck/internal/core/history"
	"github.com/sadopc/reqdeck/internal/core/query"
	"github.com/sadopc/reqdeck/internal/core/request"
	"github.com/sadopc/reqdeck/internal/errdef"
	"github.com/sadopc/reqdeck/internal/protocol"
	httpclient "github.com/sadopc/reqdeck/internal/protocol/http"
	"github.com/sadopc/reqdeck/internal/telemetry"
)

// DefaultTimeout bounds one execution unless WithTimeout says otherwise.
const DefaultTimeout = 30 * time.Second

// RequestSource returns the current stored version of a request.
type RequestSource interface {
	Get(ctx context.Context, id int64) (request.Request, error)
}

// Recorder appends executions to the history log.
type Recorder interface {
	Append(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Engine runs requests through the protocol registry.
type Engine struct {
	requests RequestSource
	history  Recorder
	registry *protocol.Registry
	clock    clock.Clock
	timeout  time.Duration
	log      zerolog.Logger
	tel      telemetry.Instrumenter
}

type Option func(*Engine)

func WithRegistry(r *protocol.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "engine").Logger() }
}

func WithTelemetry(t telemetry.Instrumenter) Option {
	return func(e *Engine) {
		if t != nil {
			e.tel = t
		}
	}
}

// New creates an engine. Without WithRegistry it executes over a default
// HTTP client.
func New(reqs RequestSource, hist Recorder, opts ...Option) *Engine {
	e := &Engine{
		requests: reqs,
		history:  hist,
		clock:    clock.System(),
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
		tel:      telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = protocol.NewRegistry(httpclient.New())
	}
	return e
}

// Execute runs the stored version of request id and appends the outcome to
// the history log.
//
// A completed call is recorded and returned without error whatever its
// status. A call that produced no response is recorded with status 0 and
// returned together with a CodeTransport error. Validation and lookup errors
// record nothing.
func (e *Engine) Execute(ctx context.Context, id int64) (history.Entry, error) {
	r, err := e.requests.Get(ctx, id)
	if err != nil {
		return history.Entry{}, err
	}
	if err := query.ValidateURL(r.URL); err != nil {
		return history.Entry{}, err
	}

	execID := uuid.NewString()
	log := e.log.With().
		Str("execution_id", execID).
		Int64("request_id", id).
		Str("method", string(r.Method)).
		Logger()

	preq := buildProtocolRequest(r, e.timeout)

	ctx, span := e.tel.Start(ctx, telemetry.RequestStart{
		ExecutionID: execID,
		RequestID:   id,
		Name:        r.Name,
		Method:      preq.Method,
		URL:         preq.URL,
	})

	started := e.clock.Now()
	resp, callErr := e.registry.Execute(ctx, preq)
	elapsed := e.clock.Since(started)

	if callErr != nil && errdef.Is(callErr, errdef.CodeValidation) {
		span.End(telemetry.RequestResult{Err: callErr})
		return history.Entry{}, callErr
	}

	var phases []telemetry.Phase
	entry := history.Entry{
		RequestID:    id,
		Method:       preq.Method,
		URL:          preq.URL,
		RequestBody:  string(preq.Body),
		ResponseTime: elapsed.Milliseconds(),
		CreatedAt:    started,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
		entry.ResponseBody = "error: " + callErr.Error()
	} else {
		entry.StatusCode = resp.StatusCode
		entry.ResponseBody = string(resp.Body)
		entry.ResponseSize = resp.Size
		phases = timingPhases(resp.Timing)
		if resp.Truncated {
			log.Warn().Int64("kept_bytes", resp.Size).Msg("response body truncated")
		}
	}

	// the call already happened; record it even if the caller gave up
	stored, err := e.history.Append(context.WithoutCancel(ctx), entry)
	span.End(telemetry.RequestResult{
		Err:        callErr,
		StatusCode: entry.StatusCode,
		Duration:   elapsed,
		Size:       entry.ResponseSize,
		Phases:     phases,
	})
	if err != nil {
		log.Error().Err(err).Msg("recording execution failed")
		return history.Entry{}, err
	}

	if callErr != nil {
		log.Warn().Err(callErr).Dur("duration", elapsed).Msg("request failed")
		return stored, errdef.Wrap(errdef.CodeTransport, callErr, "executing request %d", id)
	}
	ev := log.Info()
	if stored.Outcome() == errdef.CodeRemote {
		ev = log.Warn()
	}
	ev.Int("status", stored.StatusCode).
		Dur("duration", elapsed).
		Int64("size", stored.ResponseSize).
		Str("content_type", resp.ContentType).
		Msg("request executed")
	return stored, nil
}

// timingPhases flattens t into span phases. Dial phases a reused connection
// skipped are left out.
func timingPhases(t *protocol.TimingDetail) []telemetry.Phase {
	if t == nil {
		return nil
	}
	all := []telemetry.Phase{
		{Name: "dns", Duration: t.DNSLookup},
		{Name: "connect", Duration: t.TCPConnect},
		{Name: "tls", Duration: t.TLSHandshake},
		{Name: "ttfb", Duration: t.TTFB},
		{Name: "transfer", Duration: t.Transfer},
	}
	phases := all[:0]
	for _, p := range all {
		if p.Duration > 0 || p.Name == "ttfb" || p.Name == "transfer" {
			phases = append(phases, p)
		}
	}
	return phases
}

func buildProtocolRequest(r request.Request, timeout time.Duration) *protocol.Request {
	preq := &protocol.Request{
		Protocol: "http",
		Method:   string(r.Method),
		URL:      r.URL,
		Timeout:  timeout,
	}
	if r.Method.SendsBody() && r.Body != "" {
		preq.Body = []byte(r.Body)
		preq.Headers = map[string]string{"Content-Type": "application/json"}
	}
	return preq
}
