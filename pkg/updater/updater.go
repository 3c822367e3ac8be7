// Package updater keeps a directory-document cache fresh.
//
// Each call to Update reads the current dircache.State and takes exactly one
// of three actions: nothing (the cache is up to date), a churn-only download,
// or a full download of the cache archive.
package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/lightarti-client/pkg/async"
	"github.com/jnovack/lightarti-client/pkg/dircache"
	"github.com/jnovack/lightarti-client/pkg/errs"
)

// Release sources of the directory cache.
const (
	DefaultFullCacheURL = "https://github.com/c4dt/lightarti-directory/releases/latest/download/directory-cache.tgz"
	DefaultChurnURL     = "https://github.com/c4dt/lightarti-directory/releases/latest/download/churn.txt"
)

// Status is the action an update actually took.
type Status int

const (
	UpToDate Status = iota
	DownloadedChurnOnly
	DownloadedFullCache
)

func (s Status) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case DownloadedChurnOnly:
		return "downloaded-churn"
	case DownloadedFullCache:
		return "downloaded-full"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Observer is notified once per finished update. *admin.Metrics implements it.
type Observer interface {
	ObserveUpdate(status string, d time.Duration, err error)
}

// Config holds the sources, collaborators and conventions of an Updater.
// Zero fields get defaults in New.
type Config struct {
	FullCacheURL string
	ChurnURL     string
	Layout       dircache.Layout
	// Calendar defaults to dircache.DefaultCalendar when nil.
	Calendar *dircache.Calendar
	// Now is the reference clock for freshness checks.
	Now func() time.Time

	Fetcher   Fetcher
	Extractor Extractor
	// Executor runs Submit and Go tasks; defaults to async.Goroutine.
	Executor async.Executor
	Observer Observer
}

// Updater brings cache directories up to date.
type Updater struct {
	cfg Config
	cal dircache.Calendar
}

// New applies defaults to cfg and returns an Updater.
func New(cfg Config) *Updater {
	if cfg.FullCacheURL == "" {
		cfg.FullCacheURL = DefaultFullCacheURL
	}
	if cfg.ChurnURL == "" {
		cfg.ChurnURL = DefaultChurnURL
	}
	cfg.Layout = cfg.Layout.Normalize()
	cal := dircache.DefaultCalendar()
	if cfg.Calendar != nil {
		cal = *cfg.Calendar
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = &HTTPFetcher{}
	}
	if cfg.Extractor == nil {
		cfg.Extractor = &TarGzExtractor{}
	}
	if cfg.Executor == nil {
		cfg.Executor = async.Goroutine
	}
	return &Updater{cfg: cfg, cal: cal}
}

// per-directory locks so two updates of one directory never interleave.
var dirLocks sync.Map // map[string]*sync.Mutex

// dirMutex keys the lock on the absolute, cleaned path so every spelling of
// a directory shares one mutex.
func dirMutex(dir string) *sync.Mutex {
	key, err := filepath.Abs(dir)
	if err != nil {
		key = filepath.Clean(dir)
	}
	actual, _ := dirLocks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// State reads the current freshness of dir with the updater's layout and calendar.
func (u *Updater) State(dir string) (dircache.State, error) {
	store := &dircache.Store{Dir: dir, Layout: u.cfg.Layout, Calendar: u.cal}
	return store.State(u.cfg.Now())
}

// Update blocks until dir is up to date or an error occurs. The returned
// Status is only meaningful when err is nil.
func (u *Updater) Update(ctx context.Context, dir string) (Status, error) {
	if dir == "" {
		return UpToDate, errs.Invalid("cache directory", "empty path")
	}

	mtx := dirMutex(dir)
	mtx.Lock()
	defer mtx.Unlock()

	updateID := uuid.Must(uuid.NewV7())
	logger := log.Ctx(ctx).With().Str("update_id", updateID.String()).Str("dir", dir).Logger()
	ctx = logger.WithContext(ctx)

	start := time.Now()
	status, err := u.update(ctx, dir)
	if u.cfg.Observer != nil {
		u.cfg.Observer.ObserveUpdate(status.String(), time.Since(start), err)
	}
	if err != nil {
		logger.Error().Err(err).Dur("latency", time.Since(start)).Msg("cache update failed")
		return status, err
	}
	logger.Info().Str("status", status.String()).Dur("latency", time.Since(start)).Msg("cache updated")
	return status, nil
}

func (u *Updater) update(ctx context.Context, dir string) (Status, error) {
	st, err := u.State(dir)
	if err != nil {
		return UpToDate, err
	}
	log.Ctx(ctx).Debug().Str("state", st.String()).Msg("cache state")

	switch {
	case st.NeedsFull():
		return DownloadedFullCache, u.downloadFull(ctx, dir)
	case st.NeedsChurn():
		return DownloadedChurnOnly, u.downloadChurn(ctx, dir)
	default:
		return UpToDate, nil
	}
}

// downloadFull repopulates dir from the cache archive. If the archive carries
// no churn file, the churn file is fetched as well so that the directory is
// fully current afterwards.
func (u *Updater) downloadFull(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Transport(err, "create cache directory %s", dir)
	}

	body, err := u.cfg.Fetcher.Fetch(ctx, u.cfg.FullCacheURL)
	if err != nil {
		return errs.Transport(err, "fetch %s", u.cfg.FullCacheURL)
	}
	defer body.Close()

	names, err := u.cfg.Extractor.Extract(ctx, body, dir)
	if err != nil {
		return errs.Transport(err, "extract %s", u.cfg.FullCacheURL)
	}
	log.Ctx(ctx).Debug().Strs("files", names).Msg("archive extracted")

	for _, n := range names {
		if n == u.cfg.Layout.Churn {
			return nil
		}
	}
	return u.downloadChurn(ctx, dir)
}

// downloadChurn overwrites the churn file of dir.
func (u *Updater) downloadChurn(ctx context.Context, dir string) error {
	body, err := u.cfg.Fetcher.Fetch(ctx, u.cfg.ChurnURL)
	if err != nil {
		return errs.Transport(err, "fetch %s", u.cfg.ChurnURL)
	}
	defer body.Close()

	dst := u.cfg.Layout.Path(dir, u.cfg.Layout.Churn)
	n, err := WriteFileAtomic(dst, body)
	if err != nil {
		return errs.Transport(err, "write %s", dst)
	}
	log.Ctx(ctx).Debug().Str("file", dst).Int64("bytes", n).Msg("churn written")
	return nil
}

// Submit schedules an update of dir on the configured executor and returns
// immediately. onComplete is called exactly once with the outcome, on the
// executor's goroutine. A non-nil error means nothing was scheduled and
// onComplete will not be called.
func (u *Updater) Submit(ctx context.Context, dir string, onComplete func(async.Result[Status])) error {
	if dir == "" {
		return errs.Invalid("cache directory", "empty path")
	}
	if onComplete == nil {
		return errs.Invalid("callback", "nil")
	}
	err := u.cfg.Executor.Execute(func() {
		status, err := u.Update(ctx, dir)
		onComplete(async.From(status, err))
	})
	if err != nil {
		return errs.ShutDown(err, "schedule update of "+dir)
	}
	return nil
}

// Go is Submit with the outcome delivered on a channel that receives exactly
// one value.
func (u *Updater) Go(ctx context.Context, dir string) (<-chan async.Result[Status], error) {
	ch := make(chan async.Result[Status], 1)
	if err := u.Submit(ctx, dir, func(r async.Result[Status]) { ch <- r }); err != nil {
		return nil, err
	}
	return ch, nil
}
