package asset

import (
	"errors"
	"fmt"
)

// Error markers carried in a texture descriptor's error field.
const (
	MarkerFileNotFound       = "file_not_found"
	MarkerRelativePathNoBase = "relative_path_no_blend"
	MarkerNoFilepath         = "no_filepath"
)

// ErrNoPath is returned for a source that is neither packed nor has a path.
var ErrNoPath = errors.New("texture has no file path")

// ErrObjectNotFound is returned by an ObjectStore for a missing object.
var ErrObjectNotFound = errors.New("object not found")

// ReadError reports a texture source whose bytes could not be read.
type ReadError struct {
	Path string
	// NotFound is set when the file or object does not exist.
	NotFound bool
	Err      error
}

func (e *ReadError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("texture not found: %s", e.Path)
	}
	return fmt.Sprintf("failed to read texture %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// UnresolvedPathError reports a document-relative path ("//...") with no
// base directory to resolve it against.
type UnresolvedPathError struct {
	Path string
}

func (e *UnresolvedPathError) Error() string {
	return fmt.Sprintf("cannot resolve relative texture path %q: no base directory", e.Path)
}

// ErrorMarker returns the descriptor error string for a resolve error.
func ErrorMarker(err error) string {
	var readErr *ReadError
	var unresolved *UnresolvedPathError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoPath):
		return MarkerNoFilepath
	case errors.As(err, &unresolved):
		return MarkerRelativePathNoBase
	case errors.As(err, &readErr) && readErr.NotFound:
		return MarkerFileNotFound
	case errors.As(err, &readErr) && readErr.Err != nil:
		return readErr.Err.Error()
	default:
		return err.Error()
	}
}
