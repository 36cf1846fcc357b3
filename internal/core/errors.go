package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/hishell/client"
)

var (
	// ErrNotFound is returned when no source has a package or version.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReferenceDirective marks a script directive that cannot be parsed.
	// It is the only error that aborts a whole resolution.
	ErrInvalidReferenceDirective = errors.New("invalid reference directive")

	// ErrIncompatibleFramework marks a package or group unusable on the current framework.
	ErrIncompatibleFramework = errors.New("incompatible framework")

	// ErrCacheWrite is returned when the cache directory cannot be written.
	ErrCacheWrite = errors.New("cache write failure")

	// ErrExtraction is returned when an archive cannot be read or unpacked.
	ErrExtraction = errors.New("extraction failure")

	// ErrTooDeep is returned when a dependency chain exceeds the depth limit.
	ErrTooDeep = errors.New("dependency chain too deep")
)

// Transport errors are shared with the HTTP client.
type (
	HTTPError      = client.HTTPError
	RateLimitError = client.RateLimitError
)

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Source  string
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	prefix := ""
	if e.Source != "" {
		prefix = e.Source + ": "
	}
	if e.Version != "" {
		return fmt.Sprintf("%spackage %s version %s not found", prefix, e.Name, e.Version)
	}
	return fmt.Sprintf("%spackage %s not found", prefix, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DirectiveError reports a malformed reference directive in a script.
type DirectiveError struct {
	Line      int
	Directive string
	Reason    string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %s", e.Line, ErrInvalidReferenceDirective, strings.TrimSpace(e.Directive), e.Reason)
}

func (e *DirectiveError) Unwrap() error {
	return ErrInvalidReferenceDirective
}

// IncompatibleError reports a package whose dependency groups all target
// frameworks the current environment cannot consume.
type IncompatibleError struct {
	ID        Identity
	Framework string
	Targets   []string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("%s targets [%s], none usable on %s", e.ID, strings.Join(e.Targets, ", "), e.Framework)
}

func (e *IncompatibleError) Unwrap() error {
	return ErrIncompatibleFramework
}

// CacheWriteError wraps a filesystem failure while populating the cache.
type CacheWriteError struct {
	Path string
	Err  error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCacheWrite, e.Path, e.Err)
}

func (e *CacheWriteError) Unwrap() []error {
	return []error{ErrCacheWrite, e.Err}
}

// ExtractionError wraps a failure to read or unpack an archive.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}
