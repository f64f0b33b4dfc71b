package source

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	// InvalidSourceKind: malformed URL, unrecognized video link, empty payload.
	InvalidSourceKind ErrorKind = iota + 1
	// FetchFailureKind: network error, non-2xx, every proxy failed.
	FetchFailureKind
	// ParseFailureKind: unreadable PDF, missing or disabled transcript.
	ParseFailureKind
	// TooShortKind: every extraction tier ran and the text is below the floor.
	TooShortKind
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidSourceKind:
		return "invalid_source"
	case FetchFailureKind:
		return "fetch_failure"
	case ParseFailureKind:
		return "parse_failure"
	case TooShortKind:
		return "extraction_too_short"
	}
	return "unknown"
}

// Sentinels for errors.Is checks against any *ExtractionError of that kind.
var (
	ErrInvalidSource = errors.New("invalid source")
	ErrFetchFailure  = errors.New("fetch failure")
	ErrParseFailure  = errors.New("parse failure")
	ErrTooShort      = errors.New("extraction too short")
)

// ExtractionError is the single error type returned by the pipeline.
type ExtractionError struct {
	Kind    ErrorKind
	Source  string
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	prefix := e.Kind.String()
	if e.Source != "" {
		prefix += " (" + e.Source + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the kind sentinels.
func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrInvalidSource:
		return e.Kind == InvalidSourceKind
	case ErrFetchFailure:
		return e.Kind == FetchFailureKind
	case ErrParseFailure:
		return e.Kind == ParseFailureKind
	case ErrTooShort:
		return e.Kind == TooShortKind
	}
	return false
}

func InvalidSource(src, msg string, cause error) error {
	return &ExtractionError{Kind: InvalidSourceKind, Source: src, Message: msg, Cause: cause}
}

func FetchFailure(src, msg string, cause error) error {
	return &ExtractionError{Kind: FetchFailureKind, Source: src, Message: msg, Cause: cause}
}

func ParseFailure(src, msg string, cause error) error {
	return &ExtractionError{Kind: ParseFailureKind, Source: src, Message: msg, Cause: cause}
}

// TooShort reports that got characters were extracted against a floor.
func TooShort(src string, got, floor int) error {
	return &ExtractionError{
		Kind:    TooShortKind,
		Source:  src,
		Message: fmt.Sprintf("extracted %d characters, need at least %d", got, floor),
	}
}

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}

// UserMessage turns a pipeline error into a sentence suitable for end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	kind, ok := KindOf(err)
	if !ok {
		return "Something went wrong while processing this source. Please try again."
	}
	switch kind {
	case InvalidSourceKind:
		return "This source doesn't look valid. Check the link or text and try again."
	case FetchFailureKind:
		return "We couldn't download this source. The site may be blocking access or temporarily unavailable."
	case ParseFailureKind:
		return "We couldn't read this source. The file may be damaged, or the video has no transcript."
	case TooShortKind:
		return "This page might not be an article. We couldn't find enough text to work with."
	}
	return "Something went wrong while processing this source."
}
