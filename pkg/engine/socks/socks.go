// Package socks is a client.Engine that sends requests through a local onion
// proxy speaking SOCKS5, such as a tor or arti daemon started on the cache
// directory.
//
// Sessions are isolated from each other by default: each one authenticates to
// the proxy with its own username, which onion proxies use to keep streams of
// different sessions on different circuits.
package socks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"

	"github.com/jnovack/lightarti-client/pkg/client"
	"github.com/jnovack/lightarti-client/pkg/dircache"
	"github.com/jnovack/lightarti-client/pkg/errs"
)

// Defaults for Config.
const (
	DefaultProxyAddr      = "127.0.0.1:9050"
	DefaultDialTimeout    = 30 * time.Second
	DefaultRequestTimeout = 2 * time.Minute
	DefaultMaxBodyBytes   = 64 << 20
)

// Config of an Engine. Zero values get the defaults above.
type Config struct {
	ProxyAddr      string
	Layout         dircache.Layout
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// SharedCircuits disables per-session stream isolation.
	SharedCircuits bool
}

// Engine creates SOCKS5-backed sessions.
type Engine struct {
	cfg Config
}

// New applies defaults to cfg.
func New(cfg Config) *Engine {
	if cfg.ProxyAddr == "" {
		cfg.ProxyAddr = DefaultProxyAddr
	}
	cfg.Layout = cfg.Layout.Normalize()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Engine{cfg: cfg}
}

// Create implements client.Engine. The cache directory must hold every
// mandatory artifact as a non-empty file. No connection is made until the
// first request.
func (e *Engine) Create(ctx context.Context, cacheDir string) (client.Session, error) {
	if err := dircache.VerifyDir(cacheDir, e.cfg.Layout); err != nil {
		return nil, err
	}

	var auth *proxy.Auth
	id := uuid.Must(uuid.NewV7()).String()
	if !e.cfg.SharedCircuits {
		auth = &proxy.Auth{User: id, Password: "x"}
	}
	d, err := proxy.SOCKS5("tcp", e.cfg.ProxyAddr, auth, &net.Dialer{Timeout: e.cfg.DialTimeout})
	if err != nil {
		return nil, errs.Invalid("proxy address", "%s: %v", e.cfg.ProxyAddr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks dialer for %s does not support contexts", e.cfg.ProxyAddr)
	}

	tr := &http.Transport{
		Proxy:                 nil,
		DialContext:           cd.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   e.cfg.DialTimeout,
		ExpectContinueTimeout: time.Second,
	}
	s := &session{
		id:  id,
		max: e.cfg.MaxBodyBytes,
		tr:  tr,
		hc: &http.Client{
			Transport: tr,
			Timeout:   e.cfg.RequestTimeout,
			// one request per call: redirects are returned to the caller
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
	log.Ctx(ctx).Debug().Str("session", id).Str("proxy", e.cfg.ProxyAddr).Str("dir", cacheDir).Msg("socks session created")
	return s, nil
}

type session struct {
	id    string
	max   int64
	tr    *http.Transport
	hc    *http.Client
	freed atomic.Bool
}

func (s *session) Send(ctx context.Context, req *client.Request) (*client.Response, error) {
	if s.freed.Load() {
		return nil, errs.Closed("send")
	}
	hreq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}

	resp, err := s.hc.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.max+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > s.max {
		return nil, fmt.Errorf("response body exceeds %d bytes", s.max)
	}
	return &client.Response{
		Status:  resp.StatusCode,
		Version: resp.Proto,
		Header:  resp.Header,
		Body:    body,
	}, nil
}

func (s *session) Free() {
	if s.freed.Swap(true) {
		return
	}
	s.tr.CloseIdleConnections()
}
