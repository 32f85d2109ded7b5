// Package jit implements the gdb jit compilation interface
// (https://sourceware.org/gdb/current/onlinedocs/gdb.html/JIT-Interface.html)
// on top of a live tracee.
//
// A cooperating virtual machine maintains a linked list of jit code entries
// rooted at the __jit_debug_descriptor data symbol, and calls the
// __jit_debug_register_code hook function after each list update.  Stopping
// at the hook and decoding the descriptor yields the newly registered
// function's debug info.
package jit

import (
	"fmt"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

const (
	DescriptorSymbol   = "__jit_debug_descriptor"
	RegisterHookSymbol = "__jit_debug_register_code"

	// JIT_REGISTER_FN
	actionRegisterFunction = 1

	// Sanity bound on symfile blob size.  Real symfiles are well under a
	// kilobyte.
	maxSymfileSize = 1 << 20
)

// RemoteMemory is the slice of debugger functionality needed to decode the
// jit descriptor out of a stopped tracee.
type RemoteMemory interface {
	ReadBytes(address VirtualAddress, buffer []byte) error

	ReadUint(address VirtualAddress, byteSize int) (uint64, error)

	ReadPointer(address VirtualAddress) (VirtualAddress, error)

	PointerSize() int

	// ResolveDataSymbol maps a data symbol name to its address in the
	// tracee's address space.
	ResolveDataSymbol(name string) (VirtualAddress, bool)
}

// Descriptor mirrors the tracee's jit_descriptor struct:
//
//	struct jit_descriptor {
//	  uint32_t version;
//	  uint32_t action_flag;
//	  struct jit_code_entry *relevant_entry;
//	  struct jit_code_entry *first_entry;
//	};
type Descriptor struct {
	Version       uint32
	Action        uint32
	RelevantEntry VirtualAddress
}

// CodeEntry mirrors the tracee's jit_code_entry struct:
//
//	struct jit_code_entry {
//	  struct jit_code_entry *next_entry;
//	  struct jit_code_entry *prev_entry;
//	  const char *symfile_addr;
//	  uint64_t symfile_size;
//	};
type CodeEntry struct {
	Address VirtualAddress

	SymfileAddress VirtualAddress
	SymfileSize    uint64
}

// ReadDescriptor locates and decodes the tracee's jit descriptor.
func ReadDescriptor(remote RemoteMemory) (Descriptor, error) {
	address, ok := remote.ResolveDataSymbol(DescriptorSymbol)
	if !ok {
		return Descriptor{}, fmt.Errorf(
			"%w: %s",
			ErrSymbolNotFound,
			DescriptorSymbol)
	}

	version, err := remote.ReadUint(address, 4)
	if err != nil {
		return Descriptor{}, fmt.Errorf(
			"failed to read jit descriptor version: %w",
			err)
	}

	action, err := remote.ReadUint(address+4, 4)
	if err != nil {
		return Descriptor{}, fmt.Errorf(
			"failed to read jit descriptor action: %w",
			err)
	}

	relevant, err := remote.ReadPointer(address + 8)
	if err != nil {
		return Descriptor{}, fmt.Errorf(
			"failed to read jit descriptor relevant entry: %w",
			err)
	}

	return Descriptor{
		Version:       uint32(version),
		Action:        uint32(action),
		RelevantEntry: relevant,
	}, nil
}

func readCodeEntry(
	remote RemoteMemory,
	address VirtualAddress,
) (
	CodeEntry,
	error,
) {
	pointerSize := VirtualAddress(remote.PointerSize())

	// Skip over next_entry and prev_entry.
	symfileAddress, err := remote.ReadPointer(address + 2*pointerSize)
	if err != nil {
		return CodeEntry{}, fmt.Errorf(
			"failed to read jit code entry at %s: %w",
			address,
			err)
	}

	symfileSize, err := remote.ReadUint(address+3*pointerSize, 8)
	if err != nil {
		return CodeEntry{}, fmt.Errorf(
			"failed to read jit code entry at %s: %w",
			address,
			err)
	}

	return CodeEntry{
		Address:        address,
		SymfileAddress: symfileAddress,
		SymfileSize:    symfileSize,
	}, nil
}

// ReadNewestSymfile decodes the descriptor and returns the relevant entry's
// symfile blob.  The result is nil (without error) when the descriptor does
// not announce a new function registration, e.g. on unregistration or when
// the relevant entry is null.
func ReadNewestSymfile(remote RemoteMemory) ([]byte, error) {
	descriptor, err := ReadDescriptor(remote)
	if err != nil {
		return nil, err
	}

	if descriptor.Action != actionRegisterFunction {
		return nil, nil
	}

	if descriptor.RelevantEntry == 0 {
		return nil, nil
	}

	entry, err := readCodeEntry(remote, descriptor.RelevantEntry)
	if err != nil {
		return nil, err
	}

	if entry.SymfileAddress == 0 || entry.SymfileSize == 0 {
		return nil, nil
	}

	if entry.SymfileSize > maxSymfileSize {
		return nil, fmt.Errorf(
			"%w: implausible symfile size (%d)",
			ErrMalformedDescriptor,
			entry.SymfileSize)
	}

	blob := make([]byte, entry.SymfileSize)
	err = remote.ReadBytes(entry.SymfileAddress, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to read symfile blob: %w", err)
	}

	return blob, nil
}
