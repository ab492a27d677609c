// Package builderr defines the stable error taxonomy shared by every
// core package: the action graph, the makefile cache, the executors and
// the hot-reload subsystem all terminate their error chains in a
// *BuildError so the CLI can render a consistent, suggestion-bearing
// message regardless of which layer failed.
package builderr

import (
	"errors"
	"fmt"
)

// Kind is a stable error code. Callers may switch on Kind without parsing
// the human message.
type Kind string

const (
	ConfigInvalid          Kind = "ConfigInvalid"
	DescriptorParseFailed  Kind = "DescriptorParseFailed"
	MakefileCorrupt        Kind = "MakefileCorrupt"
	DuplicateProducer      Kind = "DuplicateProducer"
	CycleDetected          Kind = "CycleDetected"
	MissingPrerequisite    Kind = "MissingPrerequisite"
	ActionFailed           Kind = "ActionFailed"
	LiveCodingConflict     Kind = "LiveCodingConflict"
	EngineReadOnlyViolation Kind = "EngineReadOnlyViolation"
	ExecutorUnavailable    Kind = "ExecutorUnavailable"
	IoError                Kind = "IoError"
)

// BuildError pairs a stable Kind with a human message and the path it
// concerns, mirroring console.CompilerError's file/message pairing so the
// CLI can render either through the same formatter.
type BuildError struct {
	Kind       Kind
	Message    string
	Path       string
	Suggestion string
	Cause      error
}

func (e *BuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// New constructs a BuildError with no path or suggestion.
func New(kind Kind, message string) *BuildError {
	return &BuildError{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *BuildError {
	return &BuildError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithPath returns a copy of e with Path set.
func (e *BuildError) WithPath(path string) *BuildError {
	cp := *e
	cp.Path = path
	return &cp
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *BuildError) WithSuggestion(suggestion string) *BuildError {
	cp := *e
	cp.Suggestion = suggestion
	return &cp
}

// Wrap builds an IoError BuildError chaining cause, preserving it for
// errors.Unwrap/errors.Is/errors.As.
func Wrap(cause error, path, message string) *BuildError {
	return &BuildError{Kind: IoError, Message: message, Path: path, Cause: cause}
}

// Is reports whether err is a *BuildError of the given kind, walking the
// error chain.
func Is(err error, kind Kind) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}
