// Command tor-request makes one HTTP request through the onion network. It
// brings the directory cache up to date, opens a client on it, prints the
// status line to stderr and the response body to stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jnovack/flag"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/lightarti-client/pkg/admin"
	"github.com/jnovack/lightarti-client/pkg/client"
	"github.com/jnovack/lightarti-client/pkg/dispatch"
	"github.com/jnovack/lightarti-client/pkg/engine/socks"
	"github.com/jnovack/lightarti-client/pkg/errs"
	"github.com/jnovack/lightarti-client/pkg/logging"
	"github.com/jnovack/lightarti-client/pkg/updater"
)

// headerFlag collects repeated -H "Name: value" flags.
type headerFlag http.Header

func (h headerFlag) String() string {
	var parts []string
	for k, vv := range h {
		for _, v := range vv {
			parts = append(parts, k+": "+v)
		}
	}
	return strings.Join(parts, ", ")
}

func (h headerFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("header %q: want \"Name: value\"", s)
	}
	http.Header(h).Add(strings.TrimSpace(k), strings.TrimSpace(v))
	return nil
}

var (
	flagCacheDir   = flag.String("cache", "./directory-cache", "cache directory")
	flagMethod     = flag.String("method", "GET", "request method: GET|HEAD|POST|PUT|DELETE")
	flagURL        = flag.String("url", "", "request URL")
	flagData       = flag.String("data", "", "request body")
	flagProxy      = flag.String("proxy", socks.DefaultProxyAddr, "SOCKS5 address of the onion proxy")
	flagTimeout    = flag.Duration("timeout", socks.DefaultRequestTimeout, "request timeout")
	flagSkipUpdate = flag.Bool("skip-update", false, "use the cache as is")
	flagAsync      = flag.Bool("async", false, "dispatch the request on the worker and wait for its callback")
	flagVerbose    = flag.Bool("v", false, "also print response headers to stderr")
	flagMetrics    = flag.String("metrics-file", "", "write request and update metrics to this file in Prometheus text format on exit")
	flagLogLevel   = flag.String("log-level", "warn", "log level: debug|info|warn|error")
	headers        = headerFlag{}
)

func main() {
	flag.Var(headers, "H", "request header \"Name: value\" (repeatable)")
	flag.Parse()
	logging.Setup(*flagLogLevel)
	os.Exit(run(log.Logger.WithContext(context.Background()), os.Stdout, os.Stderr))
}

// Exit codes by error kind. 1 is left to the Go runtime and flag errors.
const (
	exitOK      = 0
	exitUsage   = 2
	exitCache   = 3
	exitRequest = 4
	exitClosed  = 5
)

func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindConfiguration:
		return exitUsage
	case errs.KindCacheIntegrity, errs.KindTransport:
		return exitCache
	case errs.KindLifecycle:
		return exitClosed
	default:
		return exitRequest
	}
}

func run(ctx context.Context, stdout, stderr io.Writer) int {
	method, err := client.ParseMethod(*flagMethod)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	var body []byte
	if *flagData != "" {
		body = []byte(*flagData)
	}
	req, err := client.NewRequest(method, *flagURL, http.Header(headers), body)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	metrics := admin.NewMetrics()
	if *flagMetrics != "" {
		defer func() {
			if err := metrics.WriteTextfile(*flagMetrics); err != nil {
				log.Warn().Err(err).Str("path", *flagMetrics).Msg("metrics not written")
			}
		}()
	}

	if !*flagSkipUpdate {
		if _, err := updater.New(updater.Config{Observer: metrics}).Update(ctx, *flagCacheDir); err != nil {
			fmt.Fprintln(stderr, err)
			return exitCode(err)
		}
	}

	client.Init(socks.New(socks.Config{ProxyAddr: *flagProxy, RequestTimeout: *flagTimeout}))
	c, err := client.Open(ctx, *flagCacheDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}
	defer c.Close()

	d := dispatch.New(dispatch.Config{Observer: metrics})
	defer d.Close()

	resp, err := send(ctx, d, c, req, *flagAsync)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}
	fmt.Fprintf(stderr, "%s %d %s\n", resp.Version, resp.Status, http.StatusText(resp.Status))
	if *flagVerbose {
		_ = resp.Header.Write(stderr)
		fmt.Fprintln(stderr)
	}
	_, _ = stdout.Write(resp.Body)
	return exitOK
}

func send(ctx context.Context, d *dispatch.Dispatcher, c *client.Client, req *client.Request, background bool) (*client.Response, error) {
	if !background {
		return d.Do(ctx, c, req)
	}
	ch, err := d.Go(ctx, c, req)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Unpack()
	case <-time.After(*flagTimeout + 10*time.Second):
		return nil, fmt.Errorf("no response after %s", *flagTimeout)
	}
}
