// Command directory-cache keeps a directory-document cache fresh. It checks
// the cache at startup, every -interval and on SIGHUP, and serves admin
// endpoints with update metrics.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jnovack/flag"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/lightarti-client/pkg/admin"
	"github.com/jnovack/lightarti-client/pkg/logging"
	"github.com/jnovack/lightarti-client/pkg/signals"
	"github.com/jnovack/lightarti-client/pkg/updater"
)

var (
	flagCacheDir   = flag.String("cache", "./directory-cache", "cache directory")
	flagInterval   = flag.Duration("interval", time.Hour, "time between cache checks")
	flagOnce       = flag.Bool("once", false, "check the cache once and exit")
	flagAdminAddr  = flag.String("admin-addr", ":8080", "admin HTTP listen address (empty disables)")
	flagFullURL    = flag.String("full-url", updater.DefaultFullCacheURL, "URL of the full cache archive")
	flagChurnURL   = flag.String("churn-url", updater.DefaultChurnURL, "URL of the churn file")
	flagUserAgent  = flag.String("user-agent", updater.DefaultUserAgent, "User-Agent sent to the release server")
	flagLogLevel   = flag.String("log-level", "info", "log level: debug|info|warn|error")
	flagLogFile    = flag.String("log-file", "", "also write JSON logs to this rotating file")
	flagLogMaxSize = flag.Int("log-max-size", 100, "log file size in MB before rotation")
)

func main() {
	flag.Parse()
	closer, err := logging.SetupWithFile(*flagLogLevel, logging.FileOptions{
		Path:       *flagLogFile,
		MaxSizeMB:  *flagLogMaxSize,
		MaxBackups: 5,
		Compress:   true,
	})
	defer closer.Close()

	metrics := admin.NewMetrics()
	u := updater.New(updater.Config{
		FullCacheURL: *flagFullURL,
		ChurnURL:     *flagChurnURL,
		Fetcher:      &updater.HTTPFetcher{UserAgent: *flagUserAgent},
		Observer:     metrics,
	})

	stopCh := make(chan struct{})
	ctx := signals.Setup(stopCh)
	ctx = log.Logger.WithContext(ctx)

	if *flagOnce {
		os.Exit(updateOnce(ctx, u, *flagCacheDir, closer))
	}

	var adminSrv *http.Server
	if *flagAdminAddr != "" {
		adminSrv = &http.Server{
			Addr: *flagAdminAddr,
			Handler: admin.Handler(metrics, map[string]any{
				"cache":     *flagCacheDir,
				"interval":  flagInterval.String(),
				"full-url":  *flagFullURL,
				"churn-url": *flagChurnURL,
			}),
			ReadHeaderTimeout: 15 * time.Second,
		}
		go func() {
			log.Info().Str("addr", *flagAdminAddr).Msg("admin HTTP starting")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("admin HTTP failed")
			}
		}()
	}

	log.Info().
		Str("cacheDir", *flagCacheDir).
		Dur("interval", *flagInterval).
		Str("logLevel", *flagLogLevel).
		Msg("starting directory cache")
	run(ctx, u, *flagCacheDir, *flagInterval, signals.Reload(ctx))

	if adminSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = adminSrv.Shutdown(shCtx)
	}
	log.Info().Msg("directory cache stopped")
}

// updateOnce runs a single update and returns the process exit code. The log
// file is closed before returning because os.Exit skips deferred calls.
func updateOnce(ctx context.Context, u *updater.Updater, dir string, logFile io.Closer) int {
	code := 0
	if _, err := u.Update(ctx, dir); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("cache update failed")
		code = 1
	}
	if err := logFile.Close(); err != nil {
		log.Warn().Err(err).Msg("closing log file")
	}
	return code
}

// run checks the cache now, then on every tick or reload until ctx is done.
// Failed updates are logged and retried at the next tick.
func run(ctx context.Context, u *updater.Updater, dir string, interval time.Duration, reload <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		// errors are logged by the updater
		_, _ = u.Update(ctx, dir)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-reload:
		}
	}
}
