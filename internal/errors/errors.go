// Package errors defines the release error taxonomy. Typed errors carry
// the release context of a failure (file, project, step) and classify it;
// the verdict of a release is built from them.
//
// Configuration errors are fatal before any project is touched. Version
// assertion errors are fatal for one project. Step errors fail a project
// unless tagged unstable, in which case they only degrade the verdict.
//
//	err := errors.NewConfigurationError("unexpected parent", errors.ErrUnexpectedParent).
//	    WithFile("spring-cloud-dependencies/pom.xml").
//	    WithField("parent.artifactId")
//
//	var assertErr *errors.VersionAssertionError
//	if errors.As(err, &assertErr) { ... }
//
// [MarkUnstable] tags any error as unstable and [IsUnstable] finds the tag
// anywhere in a chain.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Standard library helpers, so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Manifest and descriptor sentinel errors
var (
	// ErrMissingDescriptor indicates that a mandatory descriptor file is absent.
	ErrMissingDescriptor = New("descriptor not found")
	// ErrUnexpectedParent indicates that a descriptor declares a parent other than the expected one.
	ErrUnexpectedParent = New("unexpected parent artifact id")
	// ErrMalformedDescriptor indicates that a descriptor could not be decoded.
	ErrMalformedDescriptor = New("malformed descriptor")
	// ErrLeftoverMarker indicates that a pre-release marker survived a release-grade update.
	ErrLeftoverMarker = New("leftover pre-release version marker")
)

// Flow sentinel errors
var (
	// ErrStepFailed indicates that a release step failed.
	ErrStepFailed = New("step failed")
	// ErrUnknownStep indicates that a step name or short name is not in the catalog.
	ErrUnknownStep = New("unknown step")
	// ErrAborted indicates that the operator aborted the remaining steps of a project.
	ErrAborted = New("aborted by operator")
	// ErrAbortAll indicates that the operator requested to stop the whole release.
	ErrAbortAll = New("release aborted by operator")
	// ErrProjectNotFound indicates that a project could not be located in the workspace.
	ErrProjectNotFound = New("project not found")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrUnstable is the marker carried by errors tagged with MarkUnstable.
	ErrUnstable = New("unstable")
)

// cause holds the message and wrapped error shared by the typed errors.
type cause struct {
	message string
	err     error
}

func (c *cause) Unwrap() error { return c.err }

func (c *cause) matches(target error) bool {
	return c.err != nil && errors.Is(c.err, target)
}

// describe renders "<kind> [k=v, ...]: message: cause".
func (c *cause) describe(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	if len(parts) > 0 {
		b.WriteString(" [" + strings.Join(parts, ", ") + "]")
	}
	b.WriteString(": " + c.message)
	if c.err != nil {
		b.WriteString(": " + c.err.Error())
	}
	return b.String()
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" && !strings.HasSuffix(p, "=") {
			out = append(out, p)
		}
	}
	return out
}

// ConfigurationError is a problem found before any project is touched: a
// malformed train manifest, an unexpected parent artifact id, a missing
// mandatory file or invalid settings.
type ConfigurationError struct {
	cause
	File  string
	Field string
}

// NewConfigurationError creates a ConfigurationError wrapping err.
func NewConfigurationError(message string, err error) *ConfigurationError {
	return &ConfigurationError{cause: cause{message: message, err: err}}
}

// WithFile records the offending file.
func (e *ConfigurationError) WithFile(path string) *ConfigurationError {
	e.File = path
	return e
}

// WithField records the offending configuration key.
func (e *ConfigurationError) WithField(field string) *ConfigurationError {
	e.Field = field
	return e
}

func (e *ConfigurationError) Error() string {
	return e.describe("configuration error", nonEmpty("file="+e.File, "field="+e.Field)...)
}

// Is matches any *ConfigurationError and the wrapped error.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
		return true
	}
	return e.matches(target)
}

// IsConfigurationError reports whether err is a fatal configuration problem.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return As(err, &cfgErr)
}

// VersionAssertionError reports a forbidden pre-release marker left in a
// descriptor after a release-grade update.
type VersionAssertionError struct {
	cause
	File    string
	Line    int
	Marker  string
	Content string
}

// NewVersionAssertionError creates a VersionAssertionError for the marker
// found on line of file. It wraps ErrLeftoverMarker.
func NewVersionAssertionError(file string, line int, marker, content string) *VersionAssertionError {
	return &VersionAssertionError{
		cause:   cause{message: fmt.Sprintf("found %q in %q", marker, strings.TrimSpace(content)), err: ErrLeftoverMarker},
		File:    file,
		Line:    line,
		Marker:  marker,
		Content: content,
	}
}

func (e *VersionAssertionError) Error() string {
	return e.describe("version assertion error", "file="+e.File, fmt.Sprintf("line=%d", e.Line))
}

// Is matches any *VersionAssertionError and ErrLeftoverMarker.
func (e *VersionAssertionError) Is(target error) bool {
	if _, ok := target.(*VersionAssertionError); ok {
		return true
	}
	return e.matches(target)
}

// StepError is the failure of one release step of one project.
type StepError struct {
	cause
	Project     string
	Step        string
	Description string
	unstable    bool
}

// NewStepError creates a StepError wrapping err.
func NewStepError(message string, err error) *StepError {
	return &StepError{cause: cause{message: message, err: err}}
}

// WithProject records the project.
func (e *StepError) WithProject(project string) *StepError {
	e.Project = project
	return e
}

// WithStep records the step name.
func (e *StepError) WithStep(step string) *StepError {
	e.Step = step
	return e
}

// WithDescription records the human readable step description.
func (e *StepError) WithDescription(description string) *StepError {
	e.Description = description
	return e
}

// WithUnstable tags the failure as unstable.
func (e *StepError) WithUnstable(unstable bool) *StepError {
	e.unstable = unstable
	return e
}

// Unstable reports whether the failure must not fail the verdict.
func (e *StepError) Unstable() bool {
	return e.unstable
}

func (e *StepError) Error() string {
	parts := nonEmpty("project="+e.Project, "step="+e.Step)
	if e.unstable {
		parts = append(parts, "unstable")
	}
	return e.describe("step error", parts...)
}

// Is matches any *StepError, ErrStepFailed, ErrUnstable when tagged and the
// wrapped error.
func (e *StepError) Is(target error) bool {
	if _, ok := target.(*StepError); ok {
		return true
	}
	switch target {
	case ErrStepFailed:
		return true
	case ErrUnstable:
		if e.unstable {
			return true
		}
	}
	return e.matches(target)
}

// NotFoundError is a resource that could not be located.
type NotFoundError struct {
	cause
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a NotFoundError for the resource.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		cause:        cause{message: resourceType + " not found: " + resourceID},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause records the underlying error.
func (e *NotFoundError) WithCause(err error) *NotFoundError {
	e.err = err
	return e
}

func (e *NotFoundError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

// Is matches any *NotFoundError and the wrapped error.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.matches(target)
}

// ValidationError is invalid operator input.
type ValidationError struct {
	cause
	Field string
	Value any
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{cause: cause{message: message}}
}

// WithField records the offending option.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue records the rejected value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause records the underlying error.
func (e *ValidationError) WithCause(err error) *ValidationError {
	e.err = err
	return e
}

func (e *ValidationError) Error() string {
	parts := nonEmpty("field=" + e.Field)
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.describe("validation error", parts...)
}

// Is matches any *ValidationError, ErrInvalidInput and the wrapped error.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput || e.matches(target)
}

// TimeoutError is an operation that exceeded its deadline.
type TimeoutError struct {
	cause
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a TimeoutError for operation.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{cause: cause{message: operation}, Operation: operation, Duration: duration}
}

// WithCause records the underlying error.
func (e *TimeoutError) WithCause(err error) *TimeoutError {
	e.err = err
	return e
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.err != nil {
		return base + ": " + e.err.Error()
	}
	return base
}

// Is matches any *TimeoutError, ErrTimeout and the wrapped error.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return target == ErrTimeout || e.matches(target)
}

// unstableError tags an arbitrary error as unstable.
type unstableError struct {
	err error
}

func (e *unstableError) Error() string { return e.err.Error() }
func (e *unstableError) Unwrap() error { return e.err }

func (e *unstableError) Is(target error) bool {
	return target == ErrUnstable
}

// MarkUnstable tags err as unstable. A nil error stays nil.
func MarkUnstable(err error) error {
	if err == nil {
		return nil
	}
	if IsUnstable(err) {
		return err
	}
	return &unstableError{err: err}
}

// IsUnstable reports whether err carries the unstable tag anywhere in its chain.
func IsUnstable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnstable)
}

// Wrap annotates err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. A nil err stays nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
