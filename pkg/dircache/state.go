package dircache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jnovack/lightarti-client/pkg/errs"
)

// State is a snapshot of the freshness of a cache directory relative to a
// reference instant. It is recomputed on every check and never persisted.
type State struct {
	RequiredFilesPresent    bool
	MicrodescriptorsCurrent bool
	ChurnCurrent            bool

	// Missing lists the categories of absent mandatory artifacts.
	Missing []string
}

// NeedsFull reports whether the whole cache has to be downloaded again.
func (s State) NeedsFull() bool {
	return !s.RequiredFilesPresent || !s.MicrodescriptorsCurrent
}

// NeedsChurn reports whether only the churn file has to be refreshed.
func (s State) NeedsChurn() bool {
	return !s.NeedsFull() && !s.ChurnCurrent
}

func (s State) String() string {
	if len(s.Missing) > 0 {
		return fmt.Sprintf("required=%t microdescriptors=%t churn=%t missing=%s",
			s.RequiredFilesPresent, s.MicrodescriptorsCurrent, s.ChurnCurrent, strings.Join(s.Missing, ","))
	}
	return fmt.Sprintf("required=%t microdescriptors=%t churn=%t",
		s.RequiredFilesPresent, s.MicrodescriptorsCurrent, s.ChurnCurrent)
}

// Store reads cache-directory state. The zero value uses DefaultLayout and a
// UTC calendar with weeks starting on Sunday; use NewStore for the defaults
// of the release archive.
type Store struct {
	Dir      string
	Layout   Layout
	Calendar Calendar
}

// NewStore returns a Store over dir with DefaultLayout and DefaultCalendar.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, Layout: DefaultLayout(), Calendar: DefaultCalendar()}
}

// ReadState is NewStore(dir).State(ref).
func ReadState(dir string, ref time.Time) (State, error) {
	return NewStore(dir).State(ref)
}

// State computes the freshness of the directory relative to ref.
//
// Missing files are not errors: they only flip the corresponding flags. Any
// other stat failure (permissions, I/O) is returned as a cache-integrity error.
func (s *Store) State(ref time.Time) (State, error) {
	layout := s.Layout.Normalize()
	var st State

	var micro os.FileInfo
	for _, a := range layout.Required() {
		path := layout.Path(s.Dir, a.Filename)
		fi, err := statFile(path)
		if err != nil {
			return State{}, errs.CorruptArtifact(a.Category, path, err)
		}
		if fi == nil {
			st.Missing = append(st.Missing, a.Category)
			continue
		}
		if a.Category == CategoryMicrodescriptors {
			micro = fi
		}
	}
	if len(st.Missing) > 0 {
		log.Debug().Str("dir", s.Dir).Strs("missing", st.Missing).Msg("cache incomplete")
		return st, nil
	}
	st.RequiredFilesPresent = true

	st.MicrodescriptorsCurrent = s.Calendar.SameWeek(micro.ModTime(), ref)
	if !st.MicrodescriptorsCurrent {
		log.Debug().Str("dir", s.Dir).Time("mtime", micro.ModTime()).Time("ref", ref).Msg("microdescriptors stale")
		return st, nil
	}

	churnPath := layout.Path(s.Dir, layout.Churn)
	churn, err := statFile(churnPath)
	if err != nil {
		return State{}, errs.CorruptArtifact(CategoryChurn, churnPath, err)
	}
	st.ChurnCurrent = churn != nil && s.Calendar.SameDay(churn.ModTime(), ref)
	return st, nil
}

// statFile returns (nil, nil) when path does not exist or is a directory.
func statFile(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, nil
	}
	return fi, nil
}
