package common

import (
	"fmt"
	"strconv"
)

var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrProcessExited   = fmt.Errorf("process exited")

	ErrSymbolNotFound      = fmt.Errorf("symbol not found")
	ErrMemoryRead          = fmt.Errorf("memory read error")
	ErrMalformedDescriptor = fmt.Errorf("malformed jit descriptor")
	ErrInvalidAddress      = fmt.Errorf("invalid address")
	ErrFunctionNotFound    = fmt.Errorf("function not found")
	ErrNoTargetSelected    = fmt.Errorf("no target selected")
	ErrHookSymbolNotFound  = fmt.Errorf("jit registration hook symbol not found")
)

type TrapKind string

const (
	UnknownTrap    = TrapKind("")
	SoftwareTrap   = TrapKind("software break")
	SingleStepTrap = TrapKind("single step")
)

func TrapCodeToKind(code int32) TrapKind {
	// NOTE: on x64, linux incorrectly reports software trap as SI_KERNEL (0x80)
	// when it should have reported TRAP_BRKPT (1).
	switch code {
	case 0x80: // SI_KERNEL
		return SoftwareTrap
	case 2: // TRAP_TRACE
		return SingleStepTrap
	default:
		// Most si_code values are not handled.  e.g, SI_TKILL (-6)
		return UnknownTrap
	}
}

type VirtualAddress uint64

func (addr VirtualAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(addr))
}

// ParseVirtualAddress accepts decimal values, as well as c-style hex / octal
// prefixed values.
func ParseVirtualAddress(value string) (VirtualAddress, error) {
	addr, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse virtual address (%s): %w", value, err)
	}

	return VirtualAddress(addr), nil
}

type AddressRange struct {
	Low  VirtualAddress
	High VirtualAddress
}

func (ar AddressRange) Contains(addr VirtualAddress) bool {
	return ar.Low <= addr && addr < ar.High
}
