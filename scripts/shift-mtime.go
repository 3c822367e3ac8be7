// shift-mtime.go moves the modification time of cache files, to exercise the
// freshness rules by hand: -offset -7d forces a full download, -offset -1d on
// churn.txt a churn-only one.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	offset  string
	dir     string
	only    string
	dryRun  bool
	verbose bool
)

func init() {
	flag.StringVar(&offset, "offset", "", "Offset to add to the mtime (e.g. -7d, -3h, +30m)")
	flag.StringVar(&dir, "path", ".", "Cache directory")
	flag.StringVar(&only, "file", "", "Comma-separated file names to shift (default: every regular file)")
	flag.BoolVar(&dryRun, "n", false, "Print what would change without touching files")
	flag.BoolVar(&verbose, "v", false, "Print every file")
}

func main() {
	flag.Parse()
	if offset == "" {
		log.Fatal("Usage: go run shift-mtime.go -offset <offset> [-path <dir>] [-file a,b]")
	}
	d, err := parseOffset(offset)
	if err != nil {
		log.Fatalf("Invalid offset %q: %v", offset, err)
	}

	names, err := targets(dir, only)
	if err != nil {
		log.Fatalf("Error listing %s: %v", dir, err)
	}
	for _, name := range names {
		if err := shift(filepath.Join(dir, name), d); err != nil {
			log.Fatal(err)
		}
	}
}

func targets(dir, only string) ([]string, error) {
	if only != "" {
		return strings.Split(only, ","), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// parseOffset parses strings like "+7d", "-3h", "+30m", "+45s".
func parseOffset(s string) (time.Duration, error) {
	if len(s) < 3 {
		return 0, fmt.Errorf("too short")
	}

	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("must start with + or -")
	}

	unit := s[len(s)-1]
	numPart := s[1 : len(s)-1]
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %v", numPart, err)
	}

	var dur time.Duration
	switch unit {
	case 'd':
		dur = time.Duration(n * 24 * float64(time.Hour))
	case 'h':
		dur = time.Duration(n * float64(time.Hour))
	case 'm':
		dur = time.Duration(n * float64(time.Minute))
	case 's':
		dur = time.Duration(n * float64(time.Second))
	default:
		return 0, fmt.Errorf("unknown unit %q, use d (days), h, m, or s", unit)
	}
	return time.Duration(sign) * dur, nil
}

func shift(path string, d time.Duration) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	mtime := fi.ModTime().Add(d)
	if verbose || dryRun {
		fmt.Printf("%s: %s -> %s\n", path, fi.ModTime().Format(time.RFC3339), mtime.Format(time.RFC3339))
	}
	if dryRun {
		return nil
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("chtimes %s: %w", path, err)
	}
	return nil
}
