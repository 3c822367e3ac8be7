// Package logging wraps zerolog configuration used across binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a level name to zerolog; unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup sets console output and global level.
func Setup(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = log.Output(console(os.Stderr))
}

// FileOptions configures the rotating JSON log file written next to the
// console output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SetupWithFile is Setup plus a rotating JSON file when opts.Path is set. If
// the file cannot be prepared, logging falls back to the console only and the
// error is returned. The returned closer flushes and closes the file.
func SetupWithFile(level string, opts FileOptions) (io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	w, closer, err := output(os.Stderr, opts)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	if err != nil {
		log.Warn().Err(err).Str("path", opts.Path).Msg("log file disabled")
	}
	return closer, err
}

func output(stderr io.Writer, opts FileOptions) (io.Writer, io.Closer, error) {
	cw := console(stderr)
	if opts.Path == "" {
		return cw, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return cw, nopCloser{}, fmt.Errorf("create log directory: %w", err)
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
		LocalTime:  true,
	}
	return zerolog.MultiLevelWriter(cw, rotator), rotator, nil
}

func console(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
