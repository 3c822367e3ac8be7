package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnovack/lightarti-client/internal/helpers"
	"github.com/jnovack/lightarti-client/pkg/errs"
)

func TestHeaderFlag(t *testing.T) {
	h := headerFlag{}
	require.NoError(t, h.Set("X-Token: abc"))
	require.NoError(t, h.Set("Accept:text/plain"))
	assert.Equal(t, "abc", http.Header(h).Get("X-Token"))
	assert.Equal(t, "text/plain", http.Header(h).Get("Accept"))
	assert.Error(t, h.Set("no colon"))
	assert.Error(t, h.Set(": empty name"))
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"usage", errs.Invalid("URL", "empty"), 2},
		{"cache", errs.MissingArtifact("consensus", "/x"), 3},
		{"transport", errs.Transport(io.EOF, "fetch"), 3},
		{"request", errs.Protocol(io.EOF, "GET"), 4},
		{"unclassified", io.EOF, 4},
		{"lifecycle", errs.Closed("request"), 5},
		{"stopped", errs.ShutDown(io.EOF, "schedule request"), 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
	assert.Equal(t, 0, exitOK)
}

// run uses the process-wide engine registration, so it is exercised once.
func TestRunAsyncThroughRelay(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte(r.Method+" "+r.Header.Get("X-Token")+" "), body...))
	}))
	defer origin.Close()
	relay := helpers.NewSOCKSRelay(t)

	*flagCacheDir = helpers.NewCacheDir(t)
	*flagSkipUpdate = true
	*flagProxy = relay.Addr
	*flagMethod = "post"
	*flagURL = origin.URL + "/"
	*flagData = "payload"
	*flagAsync = true
	*flagVerbose = false
	*flagMetrics = filepath.Join(t.TempDir(), "tor-request.prom")
	require.NoError(t, headers.Set("X-Token: abc"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "POST abc payload", stdout.String())
	assert.Contains(t, stderr.String(), "HTTP/1.1 200 OK", "status line is printed without -v")
	assert.Equal(t, 1, len(relay.Targets()))

	prom, err := os.ReadFile(*flagMetrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `lightarti_requests_total{outcome="ok"} 1`)
	assert.Contains(t, string(prom), "lightarti_inflight_requests 0")

	*flagMetrics = ""

	*flagURL = "not:/valid"
	code = run(context.Background(), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "invalid URL")
}
