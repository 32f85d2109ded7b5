package loadedelf

import (
	"fmt"
	"sort"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/elf"
	"github.com/pattyshack/jitdbg/procfs"
)

// Executable is the tracee's main elf executable, located in the tracee's
// address space.
//
// Position independent executables are loaded at a kernel chosen base
// address.  The load bias is recovered by comparing the elf header's entry
// point against the AT_ENTRY auxiliary vector entry.
type Executable struct {
	Path string

	File *elf.File

	LoadBias VirtualAddress

	symbolsByName map[string]*elf.Symbol

	// Defined symbols sorted by file address, for address to symbol lookup.
	sortedSymbols []*elf.Symbol
}

func LoadExecutable(pid int) (*Executable, error) {
	path := procfs.GetExecutableSymlinkPath(pid)

	file, err := elf.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to load executable for process %d: %w",
			pid,
			err)
	}

	bias, err := computeLoadBias(pid, file)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to load executable for process %d: %w",
			pid,
			err)
	}

	symbols := file.Symbols()

	byName := make(map[string]*elf.Symbol, len(symbols))
	for _, symbol := range symbols {
		byName[symbol.Name] = symbol
	}

	sorted := make([]*elf.Symbol, len(symbols))
	copy(sorted, symbols)
	sort.SliceStable(
		sorted,
		func(i int, j int) bool {
			return sorted[i].Value < sorted[j].Value
		})

	return &Executable{
		Path:          path,
		File:          file,
		LoadBias:      bias,
		symbolsByName: byName,
		sortedSymbols: sorted,
	}, nil
}

func computeLoadBias(pid int, file *elf.File) (VirtualAddress, error) {
	if file.FileType == elf.FileTypeExecutable {
		// Non-pie executables are loaded at their linked addresses.
		return 0, nil
	}

	vector, err := procfs.GetAuxiliaryVector(pid)
	if err != nil {
		return 0, err
	}

	entry, ok := vector[procfs.AT_Entry]
	if !ok {
		return 0, fmt.Errorf("auxiliary vector has no entry point")
	}

	return VirtualAddress(entry - file.EntryPointAddress), nil
}

func (executable *Executable) ToVirtualAddress(
	fileAddress uint64,
) VirtualAddress {
	return executable.LoadBias + VirtualAddress(fileAddress)
}

func (executable *Executable) ToFileAddress(
	virtualAddress VirtualAddress,
) uint64 {
	return uint64(virtualAddress - executable.LoadBias)
}

// Symbol returns the defined symbol with the given (mangled) name, or nil.
func (executable *Executable) Symbol(name string) *elf.Symbol {
	return executable.symbolsByName[name]
}

// SymbolVirtualAddress resolves a symbol name to its address in the
// tracee's address space.
func (executable *Executable) SymbolVirtualAddress(
	name string,
) (
	VirtualAddress,
	bool,
) {
	symbol, ok := executable.symbolsByName[name]
	if !ok {
		return 0, false
	}

	return executable.ToVirtualAddress(symbol.Value), true
}

// SymbolContaining returns the symbol whose span covers the given virtual
// address, or nil.
func (executable *Executable) SymbolContaining(
	address VirtualAddress,
) *elf.Symbol {
	fileAddress := executable.ToFileAddress(address)

	idx := sort.Search(
		len(executable.sortedSymbols),
		func(i int) bool {
			return executable.sortedSymbols[i].Value > fileAddress
		})
	if idx == 0 {
		return nil
	}

	symbol := executable.sortedSymbols[idx-1]
	if symbol.Size > 0 && fileAddress >= symbol.Value+symbol.Size {
		return nil
	}

	return symbol
}
