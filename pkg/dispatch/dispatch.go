// Package dispatch runs client requests synchronously or on an executor with
// completion callbacks.
//
// The asynchronous forms check everything that can be checked without the
// engine (a nil or closed client, an invalid request) before scheduling, and
// report those failures as the return value of Submit or Go. Once a request is
// scheduled its outcome is delivered exactly once, as either a response or an
// error, whatever the engine does.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/lightarti-client/pkg/async"
	"github.com/jnovack/lightarti-client/pkg/client"
	"github.com/jnovack/lightarti-client/pkg/errs"
)

// Observer sees every dispatched request. *admin.Metrics implements it.
type Observer interface {
	InflightAdd(id, method, url string)
	InflightRemove(id string)
	ObserveRequest(outcome string, d time.Duration)
}

// Config for New. Zero values get defaults.
type Config struct {
	// Executor runs Submit and Go tasks. When nil, the Dispatcher owns a
	// single-worker async.Pool, so requests complete in submission order.
	Executor async.Executor
	Observer Observer
}

// Dispatcher issues requests on clients.
type Dispatcher struct {
	exec async.Executor
	own  *async.Pool
	obs  Observer
}

// New returns a Dispatcher. Call Close to stop an owned pool.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{exec: cfg.Executor, obs: cfg.Observer}
	if d.exec == nil {
		d.own = async.NewPool(1)
		d.exec = d.own
	}
	return d
}

// Close waits for queued requests of an owned pool to finish. Submit fails
// afterwards. It has no effect on a caller-supplied executor.
func (d *Dispatcher) Close() {
	if d.own != nil {
		d.own.Close()
	}
}

// Outcome names the result of a request in logs and metrics: "ok" or the
// error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errs.KindOf(err).String()
}

// Do performs req on c and blocks until it completes. Errors from the client
// are returned unchanged; a panic in the engine is returned as a protocol
// error.
func (d *Dispatcher) Do(ctx context.Context, c *client.Client, req *client.Request) (*client.Response, error) {
	if c == nil {
		return nil, errs.Invalid("client", "nil")
	}
	id := uuid.Must(uuid.NewV7()).String()
	logger := log.Ctx(ctx).With().Str("request_id", id).Str("client_id", c.ID().String()).Logger()

	method, url := "", ""
	if req != nil {
		method, url = string(req.Method), req.URL
	}
	if d.obs != nil {
		d.obs.InflightAdd(id, method, url)
		defer d.obs.InflightRemove(id)
	}

	start := time.Now()
	resp, err := call(logger.WithContext(ctx), c, req, method, url)
	latency := time.Since(start)
	if d.obs != nil {
		d.obs.ObserveRequest(Outcome(err), latency)
	}
	if err != nil {
		logger.Warn().Err(err).Str("method", method).Str("url", url).Dur("latency", latency).Msg("request failed")
		return nil, err
	}
	logger.Info().Str("method", method).Str("url", url).Int("status", resp.Status).Int("bytes", len(resp.Body)).Dur("latency", latency).Msg("request")
	return resp, nil
}

// Submit validates c and req, schedules the request and returns at once.
// onComplete runs exactly once on the executor with the response or the
// error. A non-nil return means nothing was scheduled and onComplete will not
// run; a stopped executor is reported as a lifecycle error.
func (d *Dispatcher) Submit(ctx context.Context, c *client.Client, req *client.Request, onComplete func(async.Result[*client.Response])) error {
	if c == nil {
		return errs.Invalid("client", "nil")
	}
	if onComplete == nil {
		return errs.Invalid("callback", "nil")
	}
	if c.Closed() {
		return errs.Closed("request")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	err := d.exec.Execute(func() {
		resp, err := d.Do(ctx, c, req)
		onComplete(async.From(resp, err))
	})
	if err != nil {
		return errs.ShutDown(err, "schedule request")
	}
	return nil
}

// Go is Submit with the outcome delivered on a channel that receives exactly
// one value.
func (d *Dispatcher) Go(ctx context.Context, c *client.Client, req *client.Request) (<-chan async.Result[*client.Response], error) {
	ch := make(chan async.Result[*client.Response], 1)
	if err := d.Submit(ctx, c, req, func(r async.Result[*client.Response]) { ch <- r }); err != nil {
		return nil, err
	}
	return ch, nil
}

// call runs c.Do, recovering an engine panic into a protocol error.
func call(ctx context.Context, c *client.Client, req *client.Request, method, url string) (resp *client.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().Interface("panic", r).Msg("engine panicked")
			resp, err = nil, errs.Protocol(fmt.Errorf("engine panic: %v", r), "%s %s", method, url)
		}
	}()
	return c.Do(ctx, req)
}
