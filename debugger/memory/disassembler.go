package memory

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

// StopSiteBytes restores the original instruction bytes at addresses where
// trap instructions were inserted.  Without this, disassembly of patched
// code would show bogus int3 instructions.
type StopSiteBytes interface {
	ReplaceStopSiteBytes(startAddress VirtualAddress, bytes []byte)
}

type Instruction struct {
	Address VirtualAddress

	x86asm.Inst
}

func (inst Instruction) String() string {
	return fmt.Sprintf(
		"%s: %s",
		inst.Address,
		x86asm.GNUSyntax(inst.Inst, uint64(inst.Address), nil))
}

type Disassembler struct {
	memory    *VirtualMemory
	stopSites StopSiteBytes
}

func NewDisassembler(
	memory *VirtualMemory,
	stopSites StopSiteBytes,
) *Disassembler {
	return &Disassembler{
		memory:    memory,
		stopSites: stopSites,
	}
}

// Disassemble decodes up to maxInstructions 64-bit x86 instructions starting
// at startAddress.
func (disassembler *Disassembler) Disassemble(
	startAddress VirtualAddress,
	numBytes int,
	maxInstructions int,
) (
	[]Instruction,
	error,
) {
	buffer := make([]byte, numBytes)
	err := disassembler.memory.ReadBytes(startAddress, buffer)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to disassemble code at %s: %w",
			startAddress,
			err)
	}

	disassembler.stopSites.ReplaceStopSiteBytes(startAddress, buffer)

	instructions := []Instruction{}
	address := startAddress
	for len(buffer) > 0 {
		if maxInstructions > 0 && len(instructions) >= maxInstructions {
			break
		}

		inst, err := x86asm.Decode(buffer, 64)
		if err != nil {
			// The tail of the buffer may end mid-instruction.
			break
		}

		instructions = append(
			instructions,
			Instruction{
				Address: address,
				Inst:    inst,
			})

		address += VirtualAddress(inst.Len)
		buffer = buffer[inst.Len:]
	}

	return instructions, nil
}
