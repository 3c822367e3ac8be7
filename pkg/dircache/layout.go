// Package dircache reads the freshness state of a directory-document cache.
//
// A cache directory is flat and holds four mandatory artifacts (consensus,
// microdescriptors, authority, certificate) plus an optional churn file that
// is refreshed more often than the rest.
package dircache

import "path/filepath"

// Artifact categories, used in log fields and cache-integrity errors.
const (
	CategoryConsensus        = "consensus"
	CategoryMicrodescriptors = "microdescriptors"
	CategoryAuthority        = "authority"
	CategoryCertificate      = "certificate"
	CategoryChurn            = "churn"
)

// Layout names the files of a cache directory.
type Layout struct {
	Consensus        string
	Microdescriptors string
	Authority        string
	Certificate      string
	Churn            string
}

// DefaultLayout matches the files shipped in the directory-cache release archive.
func DefaultLayout() Layout {
	return Layout{
		Consensus:        "consensus.txt",
		Microdescriptors: "microdescriptors.txt",
		Authority:        "authority.json",
		Certificate:      "certificate.txt",
		Churn:            "churn.txt",
	}
}

// Artifact is one named file of the layout.
type Artifact struct {
	Category string
	Filename string
}

// Required returns the mandatory artifacts in a stable order.
func (l Layout) Required() []Artifact {
	return []Artifact{
		{CategoryConsensus, l.Consensus},
		{CategoryMicrodescriptors, l.Microdescriptors},
		{CategoryAuthority, l.Authority},
		{CategoryCertificate, l.Certificate},
	}
}

// Path joins dir and the file name of an artifact.
func (l Layout) Path(dir, filename string) string {
	return filepath.Join(dir, filename)
}

// Normalize returns l with every empty name replaced by its default.
func (l Layout) Normalize() Layout {
	d := DefaultLayout()
	if l.Consensus == "" {
		l.Consensus = d.Consensus
	}
	if l.Microdescriptors == "" {
		l.Microdescriptors = d.Microdescriptors
	}
	if l.Authority == "" {
		l.Authority = d.Authority
	}
	if l.Certificate == "" {
		l.Certificate = d.Certificate
	}
	if l.Churn == "" {
		l.Churn = d.Churn
	}
	return l
}
