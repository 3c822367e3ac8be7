package helpers

import (
	"archive/tar"
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/jnovack/lightarti-client/pkg/client"
	"github.com/jnovack/lightarti-client/pkg/dircache"
)

// ReservePort returns an available local TCP port by briefly listening and closing.
func ReservePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "reserve a local port")
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// Ref is a fixed Wednesday used as "now" by tests. The Monday-based week
// containing it runs 2026-10-12 .. 2026-10-18.
var Ref = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// CacheFiles returns the contents of a complete release archive for layout l,
// churn included when withChurn is set.
func CacheFiles(l dircache.Layout, withChurn bool) map[string]string {
	l = l.Normalize()
	files := map[string]string{
		l.Consensus:        "network-status-version 3 microdesc\n",
		l.Microdescriptors: "onion-key\n",
		l.Authority:        `{"name":"test","v3ident":"0000"}`,
		l.Certificate:      "dir-key-certificate-version 3\n",
	}
	if withChurn {
		files[l.Churn] = "churn 1\n"
	}
	return files
}

// TarGz builds a gzip-compressed tar archive holding files under "./", the
// way the release archive is packed. A directory entry for "./" comes first.
func TarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "./", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: Ref,
	}))
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		body := files[n]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: "./" + n, Typeflag: tar.TypeReg, Mode: 0o644,
			Size: int64(len(body)), ModTime: Ref.AddDate(0, 0, -60),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// TarGzEntries builds an archive from raw headers, for malformed-archive tests.
// Regular entries get a body of hdr.Size 'x' bytes.
func TarGzEntries(t *testing.T, hdrs ...*tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, h := range hdrs {
		require.NoError(t, tw.WriteHeader(h))
		if h.Typeflag == tar.TypeReg && h.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte("x"), int(h.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// SeedCache writes a complete cache into dir. Mandatory files get micro as
// mtime; the churn file is only written when churn is non-zero.
func SeedCache(t *testing.T, dir string, micro, churn time.Time) {
	t.Helper()
	l := dircache.DefaultLayout()
	files := CacheFiles(l, false)
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		require.NoError(t, os.Chtimes(p, micro, micro))
	}
	if !churn.IsZero() {
		p := filepath.Join(dir, l.Churn)
		require.NoError(t, os.WriteFile(p, []byte("churn 0\n"), 0o644))
		require.NoError(t, os.Chtimes(p, churn, churn))
	}
}

// NewCacheDir is SeedCache on a fresh temporary directory with every file
// current at Ref.
func NewCacheDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SeedCache(t, dir, Ref, Ref)
	return dir
}

// Release serves a cache archive and a churn file over HTTP and counts hits.
type Release struct {
	*httptest.Server

	Archive []byte
	Churn   string

	FullHits  atomic.Int64
	ChurnHits atomic.Int64
	// Fail makes every request answer 503 while set.
	Fail atomic.Bool
}

// NewRelease starts a Release server that is closed with the test.
func NewRelease(t *testing.T, archive []byte, churn string) *Release {
	t.Helper()
	r := &Release{Archive: archive, Churn: churn}
	mux := http.NewServeMux()
	mux.HandleFunc("/directory-cache.tgz", func(w http.ResponseWriter, _ *http.Request) {
		r.FullHits.Add(1)
		if r.Fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(r.Archive)
	})
	mux.HandleFunc("/churn.txt", func(w http.ResponseWriter, _ *http.Request) {
		r.ChurnHits.Add(1)
		if r.Fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(r.Churn))
	})
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Server.Close)
	return r
}

// FullURL is the archive location.
func (r *Release) FullURL() string { return r.URL + "/directory-cache.tgz" }

// ChurnURL is the churn file location.
func (r *Release) ChurnURL() string { return r.URL + "/churn.txt" }

// FakeEngine is a client.Engine whose sessions answer every request with
// Respond (default: 200 echoing the request body). It counts sessions and
// frees, and records whether Send ever ran on a freed session.
type FakeEngine struct {
	Respond   func(ctx context.Context, req *client.Request) (*client.Response, error)
	CreateErr error

	Created   atomic.Int64
	Freed     atomic.Int64
	Sent      atomic.Int64
	AfterFree atomic.Int64

	mu   sync.Mutex
	dirs []string
}

// Create implements client.Engine.
func (e *FakeEngine) Create(_ context.Context, dir string) (client.Session, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	e.Created.Add(1)
	e.mu.Lock()
	e.dirs = append(e.dirs, dir)
	e.mu.Unlock()
	return &fakeSession{e: e}, nil
}

// Dirs lists the cache directories sessions were created for.
func (e *FakeEngine) Dirs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.dirs...)
}

type fakeSession struct {
	e     *FakeEngine
	freed atomic.Bool
}

func (s *fakeSession) Send(ctx context.Context, req *client.Request) (*client.Response, error) {
	if s.freed.Load() {
		s.e.AfterFree.Add(1)
	}
	s.e.Sent.Add(1)
	if s.e.Respond != nil {
		return s.e.Respond(ctx, req)
	}
	return &client.Response{
		Status:  http.StatusOK,
		Version: "HTTP/1.1",
		Header:  http.Header{"Content-Type": {"text/plain"}},
		Body:    append([]byte(nil), req.Body...),
	}, nil
}

func (s *fakeSession) Free() {
	s.freed.Store(true)
	s.e.Freed.Add(1)
}
