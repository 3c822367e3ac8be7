package updater

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnovack/lightarti-client/internal/helpers"
)

func reg(name string, size int64) *tar.Header {
	return &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: size}
}

func TestExtractKeepsRegularFilesOnly(t *testing.T) {
	archive := helpers.TarGzEntries(t,
		&tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0o755},
		reg("./consensus.txt", 3),
		&tar.Header{Name: "./link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"},
		&tar.Header{Name: "./hard", Typeflag: tar.TypeLink, Linkname: "consensus.txt"},
		&tar.Header{Name: "./sub/", Typeflag: tar.TypeDir, Mode: 0o755},
		reg("certificate.txt", 2),
	)
	dir := t.TempDir()

	names, err := (&TarGzExtractor{}).Extract(context.Background(), bytes.NewReader(archive), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"consensus.txt", "certificate.txt"}, names)

	got, err := os.ReadFile(filepath.Join(dir, "consensus.txt"))
	require.NoError(t, err)
	assert.Equal(t, "xxx", string(got))
	assert.NoFileExists(t, filepath.Join(dir, "link"))
	assert.NoFileExists(t, filepath.Join(dir, "hard"))
	assert.NoDirExists(t, filepath.Join(dir, "sub"))
}

func TestExtractReplacesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "consensus.txt"), []byte("old contents"), 0o600))

	archive := helpers.TarGzEntries(t, reg("./consensus.txt", 1))
	_, err := (&TarGzExtractor{}).Extract(context.Background(), bytes.NewReader(archive), dir)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "consensus.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestExtractRejectsUnsafeNames(t *testing.T) {
	for _, name := range []string{"../escape", "./a/../../escape", "/etc/cron.d/x", `..\escape`} {
		t.Run(name, func(t *testing.T) {
			parent := t.TempDir()
			dir := filepath.Join(parent, "cache")
			require.NoError(t, os.Mkdir(dir, 0o755))

			archive := helpers.TarGzEntries(t, reg(name, 1))
			_, err := (&TarGzExtractor{}).Extract(context.Background(), bytes.NewReader(archive), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unsafe archive entry")
			assert.NoFileExists(t, filepath.Join(parent, "escape"))
		})
	}
}

func TestExtractSizeLimit(t *testing.T) {
	archive := helpers.TarGzEntries(t, reg("./small", 4), reg("./big", 64))
	dir := t.TempDir()

	names, err := (&TarGzExtractor{MaxEntryBytes: 16}).Extract(context.Background(), bytes.NewReader(archive), dir)
	require.ErrorIs(t, err, ErrEntryTooLarge)
	assert.Equal(t, []string{"small"}, names, "files before the failure stay")
	assert.NoFileExists(t, filepath.Join(dir, "big"))
}

func TestExtractNotGzip(t *testing.T) {
	_, err := (&TarGzExtractor{}).Extract(context.Background(), strings.NewReader("plain text"), t.TempDir())
	assert.Error(t, err)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	archive := helpers.TarGzEntries(t, reg("./a", 1))
	_, err := (&TarGzExtractor{}).Extract(ctx, bytes.NewReader(archive), t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEntryName(t *testing.T) {
	ok := map[string]string{
		"./consensus.txt": "consensus.txt",
		"consensus.txt":   "consensus.txt",
		"./a/b.txt":       "a/b.txt",
		"a//b":            "a/b",
	}
	for raw, want := range ok {
		got, err := entryName(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	for _, raw := range []string{"", "  ", ".", "./", "..", "a/../..", "/abs"} {
		_, err := entryName(raw)
		assert.Error(t, err, raw)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "churn.txt")

	n, err := WriteFileAtomic(dst, strings.NewReader("one"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = WriteFileAtomic(dst, strings.NewReader("two"))
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
	fi, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestHTTPFetcher(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.Error(w, "not here", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client()}
	rc, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, DefaultUserAgent, ua)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "not here", se.Body)

	f.UserAgent = "custom/2"
	rc2, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	rc2.Close()
	assert.Equal(t, "custom/2", ua)
}
