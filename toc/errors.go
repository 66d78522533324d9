package toc

import "fmt"

// Error classifies why a table of contents could not be obtained.
// All of them are fatal to loading a disc.
type Error int

const (
	ErrMissingTOC  Error = 1 // no embedded TOC and generation disabled
	ErrReadTOC     Error = 2 // backend failed to return TOC bytes
	ErrDecodeTOC   Error = 3 // embedded TOC bytes are malformed
	ErrGenerateTOC Error = 4 // synthesizing a TOC from the track list failed
)

func (e Error) Error() string {
	return fmt.Sprintf("toc: %v", e.name())
}

func (e Error) name() string {
	switch e {
	case ErrMissingTOC:
		return "image has no table of contents and generation is disabled"
	case ErrReadTOC:
		return "unable to read table of contents"
	case ErrDecodeTOC:
		return "unable to decode table of contents"
	case ErrGenerateTOC:
		return "unable to generate table of contents"
	default:
		return fmt.Sprintf("unknown error code: %v", int(e))
	}
}

// ResolveError is returned by Resolve. It matches its Kind with errors.Is
// and unwraps to the underlying cause, if any.
type ResolveError struct {
	Kind Error
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ResolveError) Is(target error) bool {
	k, ok := target.(Error)
	return ok && k == e.Kind
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
