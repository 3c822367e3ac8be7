package updater

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// Extractor unpacks an archive stream into a directory and returns the
// relative names of the files it wrote.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, dir string) ([]string, error)
}

// DefaultMaxEntryBytes bounds a single extracted file.
const DefaultMaxEntryBytes = 256 << 20

// ErrEntryTooLarge is returned for archive entries above the size limit.
var ErrEntryTooLarge = errors.New("archive entry too large")

// TarGzExtractor extracts gzip-compressed tar archives.
//
// Only regular files are written; directories, links and special files are
// skipped. Entry names are taken relative to the archive root ("./" is
// dropped) and written under dir, replacing existing files of the same name.
// Nothing is rolled back on failure: files written before the error remain.
type TarGzExtractor struct {
	MaxEntryBytes int64
}

// Extract implements Extractor.
func (x *TarGzExtractor) Extract(ctx context.Context, r io.Reader, dir string) ([]string, error) {
	limit := x.MaxEntryBytes
	if limit <= 0 {
		limit = DefaultMaxEntryBytes
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var written []string
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		// insecure names are rejected below with a clearer message
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return written, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			log.Ctx(ctx).Debug().Str("entry", hdr.Name).Msg("skipping non-regular entry")
			continue
		}

		name, err := entryName(hdr.Name)
		if err != nil {
			return written, err
		}
		if hdr.Size > limit {
			return written, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrEntryTooLarge, name, hdr.Size, limit)
		}

		dst := filepath.Join(dir, filepath.FromSlash(name))
		n, err := WriteFileAtomic(dst, io.LimitReader(tr, limit))
		if err != nil {
			return written, fmt.Errorf("extract %s: %w", name, err)
		}
		written = append(written, name)
		log.Ctx(ctx).Debug().Str("entry", name).Int64("bytes", n).Msg("extracted")
	}
	return written, nil
}

// entryName validates an archive entry name and returns it relative to the
// archive root. Absolute names and any ".." element are rejected.
func entryName(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("unsafe archive entry: empty name")
	}
	if strings.Contains(raw, `\`) {
		return "", fmt.Errorf("unsafe archive entry %q: backslash in name", raw)
	}
	if path.IsAbs(raw) || filepath.IsAbs(raw) || filepath.VolumeName(raw) != "" {
		return "", fmt.Errorf("unsafe archive entry %q: absolute path", raw)
	}
	for _, elem := range strings.Split(raw, "/") {
		if elem == ".." {
			return "", fmt.Errorf("unsafe archive entry %q: path traversal", raw)
		}
	}
	name := path.Clean(raw)
	if name == "." {
		return "", fmt.Errorf("unsafe archive entry %q: no file name", raw)
	}
	return name, nil
}
