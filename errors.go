package zpack

import (
	"errors"
	"fmt"
)

// The error kinds reported by this package. Returned errors wrap one of
// these, so callers should test with errors.Is.
var (
	// ErrInvalidParameter reports a parameter out of range, an unknown
	// option, or an operation in the wrong state.
	ErrInvalidParameter = errors.New("zpack: invalid parameter")

	// ErrNotThisFormat reports input that does not start with a frame
	// magic number.
	ErrNotThisFormat = errors.New("zpack: not a zpack frame")

	// ErrCorruption reports a malformed frame, block or table, a bad
	// reference, or a checksum mismatch.
	ErrCorruption = errors.New("zpack: corrupted data")

	// ErrBufferTooSmall reports a fixed destination that cannot hold the
	// result.
	ErrBufferTooSmall = errors.New("zpack: destination buffer too small")

	// ErrSizeUnknown reports a frame whose header does not record the
	// content size when the size was required.
	ErrSizeUnknown = errors.New("zpack: content size unknown")

	// ErrNoSamples reports dictionary training without usable samples.
	ErrNoSamples = errors.New("zpack: no training samples")

	// ErrAllocation reports a request for more memory than the context
	// allows.
	ErrAllocation = errors.New("zpack: allocation failure")
)

// Refinements of the error kinds above.
var (
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrCorruption)
	ErrWrongDictionary  = fmt.Errorf("%w: frame requires a different dictionary", ErrCorruption)
	ErrWrongStage       = fmt.Errorf("%w: operation not allowed in this stage", ErrInvalidParameter)
	ErrStreamEnded      = fmt.Errorf("%w: stream already ended", ErrWrongStage)
	ErrContextClosed    = fmt.Errorf("%w: context is closed", ErrWrongStage)
)

func corruptf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrCorruption}, a...)...)
}

func invalidf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidParameter}, a...)...)
}

func allocf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrAllocation}, a...)...)
}
