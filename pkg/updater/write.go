package updater

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes contents from r into dst through a temporary file in
// the same directory, so readers never observe a half-written dst.
func WriteFileAtomic(dst string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdirall %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create tmp for %s: %w", dst, err)
	}
	tmp := f.Name()
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return n, fmt.Errorf("copy tmp %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("close tmp %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("chmod tmp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("rename tmp %s -> %s: %w", tmp, dst, err)
	}
	return n, nil
}
