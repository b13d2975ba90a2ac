package kms

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// LockedAllocator hands out mlocked, guard-paged memguard buffers.
type LockedAllocator struct{}

var _ interfaces.ScratchAllocator = LockedAllocator{}

// Alloc returns a zeroed buffer of size bytes. memguard panics when it
// cannot obtain locked memory; that is reported as ErrOutOfMemory.
func (LockedAllocator) Alloc(size int) (s interfaces.Scratch, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("scratch size %d: %w", size, interfaces.ErrInvalidParameter)
	}
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: %v", interfaces.ErrOutOfMemory, r)
		}
	}()
	return &lockedScratch{buf: memguard.NewBuffer(size)}, nil
}

type lockedScratch struct {
	buf *memguard.LockedBuffer
}

func (s *lockedScratch) Bytes() []byte { return s.buf.Bytes() }

func (s *lockedScratch) Destroy() { s.buf.Destroy() }

// withScratch runs fn on a scratch buffer of size bytes and scrubs it on
// every return path, including panics inside fn.
func (e *Enclave) withScratch(size int, fn func(buf []byte) error) error {
	s, err := e.alloc.Alloc(size)
	if err != nil {
		if errors.Is(err, interfaces.ErrOutOfMemory) {
			return err
		}
		return fmt.Errorf("%w: %v", interfaces.ErrOutOfMemory, err)
	}
	defer func() {
		cryptoutils.Wipe(s.Bytes())
		s.Destroy()
	}()
	return fn(s.Bytes()[:size])
}
