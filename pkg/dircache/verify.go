package dircache

import (
	"errors"
	"io/fs"
	"os"

	"github.com/jnovack/lightarti-client/pkg/errs"
)

// Verify checks that the directory exists and that every mandatory artifact is
// a non-empty regular file. Freshness is not considered. The first problem
// found is returned as a cache-integrity error naming the artifact category.
func (s *Store) Verify() error {
	return VerifyDir(s.Dir, s.Layout)
}

// VerifyDir is Verify for an arbitrary directory and layout.
func VerifyDir(dir string, layout Layout) error {
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return errs.MissingDirectory(dir)
	}
	if err != nil {
		return errs.CorruptArtifact("cache directory", dir, err)
	}
	if !fi.IsDir() {
		return errs.Invalid("cache directory", "%s is not a directory", dir)
	}

	layout = layout.Normalize()
	for _, a := range layout.Required() {
		path := layout.Path(dir, a.Filename)
		fi, err := statFile(path)
		if err != nil {
			return errs.CorruptArtifact(a.Category, path, err)
		}
		if fi == nil {
			return errs.MissingArtifact(a.Category, path)
		}
		if fi.Size() == 0 {
			return errs.CorruptArtifact(a.Category, path, nil)
		}
	}
	return nil
}
