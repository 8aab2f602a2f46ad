// Package fault defines the error taxonomy shared across the pipeline.
//
// Fatal failures (validation, configuration, I/O, normalization) abort a run
// before or at the stage that detected them. Warnings are ordinary error
// values collected and reported alongside successful output.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed timeline or stage document. It is
// raised at construction time, before any synthesis starts.
type ValidationError struct {
	Component string // e.g. "frequency timeline", "stage timeline"
	Detail    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Component, e.Detail)
}

// Validation builds a ValidationError with a formatted detail message.
func Validation(component, format string, args ...any) *ValidationError {
	return &ValidationError{Component: component, Detail: fmt.Sprintf(format, args...)}
}

// ConfigError reports configuration that is well-formed but unsatisfiable:
// mismatched stem sample rates, mastering targets that cannot both hold, and
// the like. Raised before the affected stage runs.
type ConfigError struct {
	Component string
	Detail    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s configuration: %s", e.Component, e.Detail)
}

// Config builds a ConfigError with a formatted detail message.
func Config(component, format string, args ...any) *ConfigError {
	return &ConfigError{Component: component, Detail: fmt.Sprintf(format, args...)}
}

// IOError names the path that could not be read or written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IO wraps err with the path it concerns.
func IO(path string, err error) *IOError {
	return &IOError{Path: path, Err: err}
}

// NormalizationError reports a stem whose declared sample format does not
// match its actual data range.
type NormalizationError struct {
	Stem   string
	Detail string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("stem %q normalization: %s", e.Stem, e.Detail)
}

// ClipWarning is non-fatal: the pre-master sum exceeded 0 dBFS. It is
// surfaced, never silently corrected, since silent correction would hide an
// upstream gain mistake.
type ClipWarning struct {
	PeakDBFS float64
}

func (e *ClipWarning) Error() string {
	return fmt.Sprintf("pre-master peak %.2f dBFS exceeds 0 dBFS", e.PeakDBFS)
}

// IsWarning reports whether err is non-fatal and may accompany successful
// output.
func IsWarning(err error) bool {
	var cw *ClipWarning
	return errors.As(err, &cw)
}
