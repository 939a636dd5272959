// Package xerrors models the abstract error kinds from the refresh
// pipeline's error-handling design as typed, errors.Is/As-comparable
// values, instead of relying on string matching to tell a fatal refresh
// error apart from a per-indexer or per-record one.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind distinguishes the fatal/non-fatal error families raised anywhere in
// the refresh pipeline.
type Kind int

const (
	// KindRegistry covers transport, auth and parse failures talking to the
	// network registry. Always fatal to the current refresh.
	KindRegistry Kind = iota
	// KindEmptyRegistryResult is raised when a registry fetch returns zero
	// records; treated the same as KindRegistry.
	KindEmptyRegistryResult
	// KindValidation covers a single malformed raw record. Logged and
	// dropped; never fatal on its own.
	KindValidation
	// KindProbeTimeout, KindProbeTransport and KindProbeParse cover the
	// per-indexer probes (version, POI, progress, cost-model). They block
	// the indexer, except for the cost-model probe which tolerates failure.
	KindProbeTimeout
	KindProbeTransport
	KindProbeParse
	// KindBlocklistHit covers an address, host, version or POI blocklist
	// match.
	KindBlocklistHit
	// KindNoSurvivors is raised when a refresh's filtering step empties the
	// survivor set (subgraph preprocessing, or the indexer pipeline). Always
	// fatal.
	KindNoSurvivors
)

func (k Kind) String() string {
	switch k {
	case KindRegistry:
		return "RegistryError"
	case KindEmptyRegistryResult:
		return "EmptyRegistryResult"
	case KindValidation:
		return "ValidationError"
	case KindProbeTimeout:
		return "ProbeTimeout"
	case KindProbeTransport:
		return "ProbeTransportError"
	case KindProbeParse:
		return "ProbeParseError"
	case KindBlocklistHit:
		return "BlocklistHit"
	case KindNoSurvivors:
		return "NoSurvivors"
	default:
		return "UnknownError"
	}
}

// Error is a typed pipeline error. Component names the stage that raised it
// (e.g. "registry", "poi", "version") and wraps an optional underlying
// cause.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, xerrors.New(xerrors.KindNoSurvivors, "", "")) or, more
// idiomatically, use the Is* helpers below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs a typed pipeline error.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap constructs a typed pipeline error wrapping cause.
func Wrap(kind Kind, component, message string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Cause: cause}
}

func sentinel(kind Kind) *Error { return &Error{Kind: kind} }

var (
	errRegistrySentinel    = sentinel(KindRegistry)
	errEmptySentinel       = sentinel(KindEmptyRegistryResult)
	errValidationSentinel  = sentinel(KindValidation)
	errProbeTimeout        = sentinel(KindProbeTimeout)
	errProbeTransport      = sentinel(KindProbeTransport)
	errProbeParse          = sentinel(KindProbeParse)
	errBlocklistHit        = sentinel(KindBlocklistHit)
	errNoSurvivorsSentinel = sentinel(KindNoSurvivors)
)

// IsFatal reports whether an error kind always aborts the current refresh
// (as opposed to being swallowed at the pipeline step that owns it).
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRegistry, KindEmptyRegistryResult, KindNoSurvivors:
		return true
	default:
		return false
	}
}

// IsKind reports whether err (or something it wraps) is a pipeline error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Exported sentinels for errors.Is comparisons against a specific kind
// without constructing a full *Error.
var (
	ErrRegistry    error = errRegistrySentinel
	ErrEmpty       error = errEmptySentinel
	ErrValidation  error = errValidationSentinel
	ErrProbeTimeout   error = errProbeTimeout
	ErrProbeTransport error = errProbeTransport
	ErrProbeParse     error = errProbeParse
	ErrBlocklistHit   error = errBlocklistHit
	ErrNoSurvivors    error = errNoSurvivorsSentinel
)
