package common

import "errors"

var (
	// ErrInvalidArgument: unknown or inactive transaction, bad buffer size,
	// invalid parameter selector.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfRange: sector, block, or tree id outside the addressable region.
	ErrOutOfRange = errors.New("out of range")
	// ErrResourceExhausted: no free tree id or data block.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrIOFailure: the device failed a request, or the redo log cannot hold
	// a commit record.
	ErrIOFailure = errors.New("i/o failure")
)
