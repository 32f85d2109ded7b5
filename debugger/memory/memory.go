package memory

import (
	"encoding/binary"
	"fmt"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/ptrace"
)

const (
	// x86-64 pointers are 8 bytes.
	pointerSize = 8
)

// VirtualMemory provides random access into a stopped tracee's address
// space.
type VirtualMemory struct {
	tracer *ptrace.Tracer
}

func NewVirtualMemory(tracer *ptrace.Tracer) *VirtualMemory {
	return &VirtualMemory{
		tracer: tracer,
	}
}

func (memory *VirtualMemory) PointerSize() int {
	return pointerSize
}

func (memory *VirtualMemory) Read(
	address VirtualAddress,
	buffer []byte,
) (
	int,
	error,
) {
	count, err := memory.tracer.ReadFromVirtualMemory(uintptr(address), buffer)
	if err != nil {
		return count, fmt.Errorf(
			"failed to read memory at %s: %w (%s)",
			address,
			ErrMemoryRead,
			err)
	}

	return count, nil
}

// ReadBytes reads exactly len(buffer) bytes starting at address.
func (memory *VirtualMemory) ReadBytes(
	address VirtualAddress,
	buffer []byte,
) error {
	count, err := memory.Read(address, buffer)
	if err != nil {
		return err
	}

	if count != len(buffer) {
		return fmt.Errorf(
			"failed to read memory at %s: %w (short read: %d of %d bytes)",
			address,
			ErrMemoryRead,
			count,
			len(buffer))
	}

	return nil
}

// ReadUint reads a little-endian unsigned integer of the given byte size
// (1, 2, 4, or 8).
func (memory *VirtualMemory) ReadUint(
	address VirtualAddress,
	byteSize int,
) (
	uint64,
	error,
) {
	buffer := make([]byte, byteSize)
	err := memory.ReadBytes(address, buffer)
	if err != nil {
		return 0, err
	}

	switch byteSize {
	case 1:
		return uint64(buffer[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(buffer)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buffer)), nil
	case 8:
		return binary.LittleEndian.Uint64(buffer), nil
	default:
		return 0, fmt.Errorf(
			"%w: unsupported integer byte size (%d)",
			ErrInvalidArgument,
			byteSize)
	}
}

// ReadPointer reads a pointer-sized unsigned integer.
func (memory *VirtualMemory) ReadPointer(
	address VirtualAddress,
) (
	VirtualAddress,
	error,
) {
	value, err := memory.ReadUint(address, pointerSize)
	if err != nil {
		return 0, err
	}

	return VirtualAddress(value), nil
}

// Write copies the bytes into the tracee's address space.  ptrace's poke
// bypasses page write protection, which is needed for patching trap bytes
// into executable pages.
func (memory *VirtualMemory) Write(
	address VirtualAddress,
	bytes []byte,
) error {
	count, err := memory.tracer.PokeData(uintptr(address), bytes)
	if err != nil {
		return fmt.Errorf("failed to write memory at %s: %w", address, err)
	}

	if count != len(bytes) {
		return fmt.Errorf(
			"failed to write memory at %s: short write (%d of %d bytes)",
			address,
			count,
			len(bytes))
	}

	return nil
}
