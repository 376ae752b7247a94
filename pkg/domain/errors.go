package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFunction is returned when a document element has no registered handler.
var ErrUnknownFunction = errors.New("unknown function")

// ErrInvalidPathTraversal is returned when a data path descends through a scalar value
// or indexes a list out of range.
var ErrInvalidPathTraversal = errors.New("invalid path traversal")

// ErrDocumentLoad is returned when a workflow document cannot be read or parsed.
var ErrDocumentLoad = errors.New("document load failed")

// ErrDuplicateFunction is returned by a strict registry when a name is registered twice.
var ErrDuplicateFunction = errors.New("function already registered")

// ErrUnknownChannel is returned when a command targets a channel the dispatcher does not own.
var ErrUnknownChannel = errors.New("unknown command channel")

// ErrReadOnlyConfig is returned when a document tries to write a configuration key.
var ErrReadOnlyConfig = errors.New("configuration is read-only")

// ErrInvalidValue is returned when a value cannot be coerced to the requested type.
var ErrInvalidValue = errors.New("invalid value")

// ErrNoMessage is returned by a broker when no message arrived before the timeout.
var ErrNoMessage = errors.New("no message available")

// ErrNoFixedPoint is returned when workflows keep reporting changes past the pass limit.
var ErrNoFixedPoint = errors.New("workflows did not reach a fixed point")

// ErrInvalidTask is returned when an inbound task body fails validation.
var ErrInvalidTask = errors.New("invalid task")

// DocumentLoadError carries the source of a document that failed to load.
type DocumentLoadError struct {
	Source string
	Err    error
}

func (e *DocumentLoadError) Error() string {
	return fmt.Sprintf("load document %q: %v", e.Source, e.Err)
}

func (e *DocumentLoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDocumentLoad}
	}
	return []error{ErrDocumentLoad, e.Err}
}

// UnknownFunctionError names the tag that could not be resolved.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}

func (e *UnknownFunctionError) Unwrap() error { return ErrUnknownFunction }

// PathError describes a failed traversal of the task data.
type PathError struct {
	Path    []string
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	msg := fmt.Sprintf("path %q at segment %q", strings.Join(e.Path, "."), e.Segment)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *PathError) Unwrap() error { return ErrInvalidPathTraversal }

// ExternalError marks a failure reported by an external system behind a channel.
type ExternalError struct {
	Channel string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// IsExternal reports whether err originated in an external system rather than in a
// workflow document or the engine itself.
func IsExternal(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext)
}

// ErrTemplateNotFound is returned when a template store has no template under a name.
var ErrTemplateNotFound = errors.New("template not found")
