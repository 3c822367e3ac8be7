// Package errs classifies the errors returned by the cache updater, the client
// handle and the request dispatcher.
//
// Every error carries a code from github.com/jmgilman/go/errors, so callers can
// either switch on KindOf(err) or use errors.GetCode / errors.IsRetryable from
// that package directly. Only transport failures are retryable.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/jmgilman/go/errors"
)

// Kind is the coarse category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: bad input detected before any network or engine call.
	KindConfiguration
	// KindLifecycle: operation attempted on a closed client or a stopped
	// executor.
	KindLifecycle
	// KindCacheIntegrity: required artifact missing or unreadable at client creation.
	KindCacheIntegrity
	// KindTransport: fetch or extraction failure while updating the cache.
	KindTransport
	// KindProtocol: the engine failed to perform a request.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindLifecycle:
		return "lifecycle"
	case KindCacheIntegrity:
		return "cache-integrity"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Codes not predefined by the errors package.
const (
	CodeClientClosed   errors.ErrorCode = "CLIENT_CLOSED"
	CodeShutDown       errors.ErrorCode = "SHUT_DOWN"
	CodeCacheIntegrity errors.ErrorCode = "CACHE_INTEGRITY"
	CodeProtocol       errors.ErrorCode = "PROTOCOL_ERROR"
)

var (
	// ErrClientClosed is wrapped by every error returned from a closed client.
	ErrClientClosed = stderrors.New("client has already been closed")
	// ErrMissingArtifact is wrapped by cache-integrity errors for absent files.
	ErrMissingArtifact = stderrors.New("missing cache artifact")
	// ErrNilSession and ErrNilResponse report engines that return neither a
	// value nor an error.
	ErrNilSession  = stderrors.New("engine returned no session")
	ErrNilResponse = stderrors.New("engine returned no response")
)

// Invalid builds a configuration error. The message always starts with
// "invalid <field>".
func Invalid(field, format string, args ...any) error {
	msg := "invalid " + field
	if format != "" {
		msg += ": " + fmt.Sprintf(format, args...)
	}
	return errors.WithContext(errors.New(errors.CodeInvalidInput, msg), "field", field)
}

// Closed builds the lifecycle error returned by a released client.
func Closed(op string) error {
	return errors.Wrapf(ErrClientClosed, CodeClientClosed, "%s rejected", op)
}

// ShutDown builds the lifecycle error for work refused because the executor
// behind it has stopped. cause stays reachable through errors.Is.
func ShutDown(cause error, op string) error {
	if cause == nil {
		return nil
	}
	return errors.Wrapf(cause, CodeShutDown, "%s rejected", op)
}

// MissingArtifact builds a cache-integrity error naming the artifact category
// (consensus, microdescriptors, authority, certificate).
func MissingArtifact(category, path string) error {
	err := errors.Wrapf(ErrMissingArtifact, CodeCacheIntegrity, "%s artifact not found", category)
	return errors.WithContextMap(err, map[string]interface{}{
		"artifact": category,
		"path":     path,
	})
}

// CorruptArtifact builds a cache-integrity error for an artifact that exists
// but cannot be used.
func CorruptArtifact(category, path string, cause error) error {
	var err errors.PlatformError
	if cause != nil {
		err = errors.Wrapf(cause, CodeCacheIntegrity, "%s artifact unreadable", category)
	} else {
		err = errors.Newf(CodeCacheIntegrity, "%s artifact unreadable", category)
	}
	return errors.WithContextMap(err, map[string]interface{}{
		"artifact": category,
		"path":     path,
	})
}

// Transport wraps a fetch or extraction failure. Returns nil if err is nil.
func Transport(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, errors.CodeNetwork, format, args...)
}

// Protocol wraps an engine failure opaquely. Returns nil if err is nil.
func Protocol(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	// permanent even if the engine error itself is classified retryable
	return errors.WithClassification(
		errors.Wrapf(err, CodeProtocol, format, args...),
		errors.ClassificationPermanent,
	)
}

// KindOf reports the category of err by its outermost code.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeInvalidConfig:
		return KindConfiguration
	case CodeClientClosed, CodeShutDown:
		return KindLifecycle
	case CodeCacheIntegrity:
		return KindCacheIntegrity
	case errors.CodeNetwork, errors.CodeTimeout:
		return KindTransport
	case CodeProtocol:
		return KindProtocol
	default:
		return KindUnknown
	}
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MissingDirectory builds the cache-integrity error for an absent cache
// directory.
func MissingDirectory(path string) error {
	err := errors.Wrapf(ErrMissingArtifact, CodeCacheIntegrity, "cache directory %s does not exist", path)
	return errors.WithContext(err, "path", path)
}
