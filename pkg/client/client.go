// Package client owns the lifecycle of an anonymity-network client bound to a
// cache directory.
//
// A Client is created from a verified cache directory, serves any number of
// requests and is released exactly once by Close. Every request after Close
// fails with a lifecycle error and never reaches the engine.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/lightarti-client/pkg/dircache"
	"github.com/jnovack/lightarti-client/pkg/errs"
)

// Option configures Open and OpenWith.
type Option func(*options)

type options struct {
	layout dircache.Layout
}

// WithLayout sets the file names checked before the engine is asked to create
// a session.
func WithLayout(l dircache.Layout) Option {
	return func(o *options) { o.layout = l }
}

// Client is a handle on one engine session.
//
// Requests may be issued concurrently. Close waits for in-flight requests and
// releases the session; it is safe to call from any goroutine.
type Client struct {
	id  uuid.UUID
	dir string

	mu      sync.RWMutex
	session Session // nil once closed
}

// Open creates a client with the engine registered by Init.
func Open(ctx context.Context, cacheDir string, opts ...Option) (*Client, error) {
	e := DefaultEngine()
	if e == nil {
		return nil, errs.Invalid("engine", "none registered, call client.Init first")
	}
	return OpenWith(ctx, e, cacheDir, opts...)
}

// OpenWith creates a client backed by a session of e.
//
// The directory must exist and hold every mandatory artifact; it does not need
// to be fresh. Engine failures that are not already classified are reported as
// protocol errors.
func OpenWith(ctx context.Context, e Engine, cacheDir string, opts ...Option) (*Client, error) {
	if e == nil {
		return nil, errs.Invalid("engine", "nil")
	}
	if cacheDir == "" {
		return nil, errs.Invalid("cache directory", "empty path")
	}
	o := options{layout: dircache.DefaultLayout()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := dircache.VerifyDir(cacheDir, o.layout); err != nil {
		return nil, err
	}

	s, err := e.Create(ctx, cacheDir)
	if err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			return nil, err
		}
		return nil, errs.Protocol(err, "create client for %s", cacheDir)
	}
	if s == nil {
		return nil, errs.Protocol(errs.ErrNilSession, "create client for %s", cacheDir)
	}

	c := &Client{id: uuid.Must(uuid.NewV7()), dir: cacheDir, session: s}
	log.Ctx(ctx).Debug().Str("client_id", c.id.String()).Str("dir", cacheDir).Msg("client created")
	return c, nil
}

// ID identifies the client in logs.
func (c *Client) ID() uuid.UUID { return c.id }

// CacheDir is the directory the client was created from.
func (c *Client) CacheDir() string { return c.dir }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session == nil
}

// Do performs one request through the engine and blocks until the response or
// an error is available. No retries are made.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, errs.Closed("request")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := log.Ctx(ctx).With().Str("client_id", c.id.String()).Str("method", string(req.Method)).Str("url", req.URL).Logger()
	start := time.Now()
	resp, err := c.session.Send(ctx, req)
	if err != nil {
		logger.Debug().Err(err).Dur("latency", time.Since(start)).Msg("request failed")
		if errs.KindOf(err) == errs.KindProtocol {
			return nil, err
		}
		return nil, errs.Protocol(err, "%s %s", req.Method, req.URL)
	}
	if resp == nil {
		return nil, errs.Protocol(errs.ErrNilResponse, "%s %s", req.Method, req.URL)
	}
	logger.Debug().Int("status", resp.Status).Int("bytes", len(resp.Body)).Dur("latency", time.Since(start)).Msg("request done")
	return resp, nil
}

// Close releases the engine session. It waits for in-flight requests. The
// session is freed exactly once; later calls return a lifecycle error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return errs.Closed("close")
	}
	c.session.Free()
	c.session = nil
	log.Debug().Str("client_id", c.id.String()).Msg("client closed")
	return nil
}
