package radfuse

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the fatal conditions the core can raise, following
// the taxonomy in the specification's error handling design.
type ErrorKind int

const (
	// ErrConfig marks an invalid kernel shape, unknown method/resampling
	// enum, or an out-of-range model parameter (e.g. r2_inpaint_thresh).
	ErrConfig ErrorKind = iota + 1
	// ErrIO marks an operation attempted on a closed raster pair, or a
	// failed open, create, read, write or warp call of the raster I/O
	// library.
	ErrIO
	// ErrFormat marks a dataset/array CRS mismatch at write time.
	ErrFormat
	// ErrUnsupportedImage marks a block that the underlying raster I/O
	// library cannot decode (e.g. 12-bit JPEG).
	ErrUnsupportedImage
	// ErrContent marks a reference that does not cover the source, or has
	// fewer non-alpha bands than the source.
	ErrContent
	// ErrBlockSize marks an auto block shape smaller than a pixel or the
	// configured halo.
	ErrBlockSize
	// ErrFileExists marks an output path collision with overwrite disabled.
	ErrFileExists
	// ErrShape marks an array/window dimension mismatch.
	ErrShape
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfig:
		return "ConfigError"
	case ErrIO:
		return "IoError"
	case ErrFormat:
		return "FormatError"
	case ErrUnsupportedImage:
		return "UnsupportedImageError"
	case ErrContent:
		return "ContentError"
	case ErrBlockSize:
		return "BlockSizeError"
	case ErrFileExists:
		return "FileExistsError"
	case ErrShape:
		return "ShapeError"
	default:
		return "Error"
	}
}

// Error is the error type returned by every fatal condition the core
// raises. Op names the operation that failed (e.g. "kernel.Fit",
// "rasterpair.Open"); Err, when non-nil, wraps the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &Error{Kind: ErrConfig}) style checks.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// NewError builds an *Error. Err may be nil.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Combine merges e1 and e2 into a single error that reports both via
// errors.Is/errors.As, via the standard library's own multi-error support
// (errors.Join's Unwrap() []error is exactly what errors.Is/As already walk).
// Either argument may be nil; Combine(nil, nil) is nil.
func Combine(e1, e2 error) error {
	return errors.Join(e1, e2)
}
