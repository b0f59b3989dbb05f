package ir

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind string

const (
	KindUnresolvableSource ErrorKind = "unresolvable_source"
	KindDuplicateName      ErrorKind = "duplicate_name"
	KindBuildFailed        ErrorKind = "build_failed"
	KindUnknownOutputName  ErrorKind = "unknown_output_name"
	KindOther              ErrorKind = "error"
)

// UnresolvableSourceError reports a locator that could not be fetched or pinned.
type UnresolvableSourceError struct {
	Name    string
	Locator string
	Cause   error
}

func (e *UnresolvableSourceError) Error() string {
	return fmt.Sprintf("unresolvable source %q (%s): %v", e.Name, e.Locator, e.Cause)
}

func (e *UnresolvableSourceError) Unwrap() error { return e.Cause }

// DuplicateNameError reports two definitions competing for one name.
type DuplicateNameError struct {
	Scope string // "source", "platform", "output"
	Name  string
	First string
	Other string
}

func (e *DuplicateNameError) Error() string {
	if e.First == "" && e.Other == "" {
		return fmt.Sprintf("duplicate %s name %q", e.Scope, e.Name)
	}
	return fmt.Sprintf("duplicate %s name %q: %s conflicts with %s", e.Scope, e.Name, e.First, e.Other)
}

// BuildFailedError reports an external builder failure for one platform.
type BuildFailedError struct {
	Platform PlatformID
	Cause    error
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build failed for platform %s: %v", e.Platform, e.Cause)
}

func (e *BuildFailedError) Unwrap() error { return e.Cause }

// UnknownOutputError reports a request for an output name that does not exist.
// Filter is set when the name came from a platform filter rather than an
// output selection.
type UnknownOutputError struct {
	Name      string
	Available []string
	Filter    bool
}

func (e *UnknownOutputError) Error() string {
	if e.Filter {
		return fmt.Sprintf("platform filter names unknown platform %q (platforms: %v)", e.Name, e.Available)
	}
	return fmt.Sprintf("unknown output %q (available: %v)", e.Name, e.Available)
}

// Kind returns the classification of the first typed error in err's chain.
func Kind(err error) ErrorKind {
	var (
		unresolvable *UnresolvableSourceError
		duplicate    *DuplicateNameError
		buildFailed  *BuildFailedError
		unknown      *UnknownOutputError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unresolvable):
		return KindUnresolvableSource
	case errors.As(err, &duplicate):
		return KindDuplicateName
	case errors.As(err, &buildFailed):
		return KindBuildFailed
	case errors.As(err, &unknown):
		return KindUnknownOutputName
	default:
		return KindOther
	}
}
