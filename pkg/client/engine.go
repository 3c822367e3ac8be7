package client

import (
	"context"
	"sync"
)

// Engine creates sessions of the anonymity-network client for a cache
// directory. Implementations validate the directory contents and return a
// cache-integrity error for unusable artifacts.
type Engine interface {
	Create(ctx context.Context, cacheDir string) (Session, error)
}

// Session is the engine-side resource behind a Client. Send may be called
// concurrently. Free is called exactly once, never concurrently with Send,
// and no method is called after it.
type Session interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Free()
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, cacheDir string) (Session, error)

// Create calls f(ctx, cacheDir).
func (f EngineFunc) Create(ctx context.Context, cacheDir string) (Session, error) {
	return f(ctx, cacheDir)
}

var (
	initOnce      sync.Once
	defaultEngine Engine
)

// Init registers the process-wide default engine used by Open. It is meant to
// be called once by the process bootstrap; only the first call has an effect
// and Init reports whether this call was it.
func Init(e Engine) bool {
	first := false
	initOnce.Do(func() {
		defaultEngine = e
		first = true
	})
	return first
}

// DefaultEngine returns the engine registered by Init, or nil.
func DefaultEngine() Engine {
	return defaultEngine
}
