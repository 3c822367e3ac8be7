package dircache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnovack/lightarti-client/pkg/errs"
)

func TestVerifyComplete(t *testing.T) {
	dir := seed(t, ref, ref)
	assert.NoError(t, NewStore(dir).Verify())
}

func TestVerifyIgnoresFreshness(t *testing.T) {
	// a stale cache is still usable for creating a client
	dir := seed(t, ref.AddDate(0, 0, -30), ref.AddDate(0, 0, -30))
	assert.NoError(t, VerifyDir(dir, DefaultLayout()))
}

func TestVerifyChurnOptional(t *testing.T) {
	dir := seed(t, ref, ref)
	require.NoError(t, os.Remove(filepath.Join(dir, DefaultLayout().Churn)))
	assert.NoError(t, VerifyDir(dir, Layout{}))
}

func TestVerifyMissingDirectory(t *testing.T) {
	err := VerifyDir(filepath.Join(t.TempDir(), "absent"), DefaultLayout())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCacheIntegrity))
	assert.ErrorIs(t, err, errs.ErrMissingArtifact)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestVerifyNotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	err := VerifyDir(f, DefaultLayout())
	assert.True(t, errs.Is(err, errs.KindConfiguration))
}

func TestVerifyNamesMissingArtifact(t *testing.T) {
	l := DefaultLayout()
	for _, a := range l.Required() {
		t.Run(a.Category, func(t *testing.T) {
			dir := seed(t, ref, ref)
			require.NoError(t, os.Remove(filepath.Join(dir, a.Filename)))

			err := VerifyDir(dir, l)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindCacheIntegrity))
			assert.ErrorIs(t, err, errs.ErrMissingArtifact)
			assert.Contains(t, err.Error(), a.Category)
		})
	}
}

func TestVerifyEmptyArtifactIsCorrupt(t *testing.T) {
	l := DefaultLayout()
	dir := seed(t, ref, ref)
	require.NoError(t, os.WriteFile(filepath.Join(dir, l.Certificate), nil, 0o644))

	err := VerifyDir(dir, l)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCacheIntegrity))
	assert.NotErrorIs(t, err, errs.ErrMissingArtifact)
	assert.Contains(t, err.Error(), "certificate")
}
