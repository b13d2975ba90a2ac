package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter covers malformed containers, missing buffers,
	// disallowed lengths, wrong key origin and unsupported keyspecs.
	ErrInvalidParameter = errors.New("ehsm: invalid parameter")

	// ErrOutOfMemory is returned when scratch memory cannot be obtained.
	ErrOutOfMemory = errors.New("ehsm: out of memory")

	// ErrMACMismatch is returned when a message authentication code does not verify.
	ErrMACMismatch = errors.New("ehsm: mac mismatch")

	// ErrUnexpected covers platform failures and policy mismatches.
	ErrUnexpected = errors.New("ehsm: unexpected error")
)

// Status is the fixed set of outcomes reported across the enclave boundary.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidParameter
	StatusOutOfMemory
	StatusMACMismatch
	StatusUnexpected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusOutOfMemory:
		return "OUT_OF_MEMORY"
	case StatusMACMismatch:
		return "MAC_MISMATCH"
	case StatusUnexpected:
		return "UNEXPECTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusOf maps an error returned by an entry point to its status code.
// Errors that wrap none of the sentinels are primitive or platform
// failures and map to StatusUnexpected.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrInvalidParameter):
		return StatusInvalidParameter
	case errors.Is(err, ErrOutOfMemory):
		return StatusOutOfMemory
	case errors.Is(err, ErrMACMismatch):
		return StatusMACMismatch
	default:
		return StatusUnexpected
	}
}

