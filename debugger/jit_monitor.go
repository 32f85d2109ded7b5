package debugger

import (
	"fmt"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/debugger/jit"
	"github.com/pattyshack/jitdbg/elf"
)

// The debugger implements jit.RemoteMemory and jit.BreakpointService.

func (db *Debugger) ReadBytes(address VirtualAddress, buffer []byte) error {
	return db.memory.ReadBytes(address, buffer)
}

func (db *Debugger) ReadUint(
	address VirtualAddress,
	byteSize int,
) (
	uint64,
	error,
) {
	return db.memory.ReadUint(address, byteSize)
}

func (db *Debugger) ReadPointer(
	address VirtualAddress,
) (
	VirtualAddress,
	error,
) {
	return db.memory.ReadPointer(address)
}

func (db *Debugger) PointerSize() int {
	return db.memory.PointerSize()
}

func (db *Debugger) ResolveDataSymbol(name string) (VirtualAddress, bool) {
	symbol := db.executable.Symbol(name)
	if symbol == nil || symbol.Type() == elf.SymbolTypeFunction {
		return 0, false
	}

	return db.executable.ToVirtualAddress(symbol.Value), true
}

// CreateBreakpointAt sets a user visible breakpoint.  Setting a breakpoint
// at an occupied address succeeds without creating a duplicate.
func (db *Debugger) CreateBreakpointAt(
	address VirtualAddress,
	name string,
) error {
	if address == 0 {
		return fmt.Errorf("%w: null breakpoint address", ErrInvalidAddress)
	}

	site, existed, err := db.stopSites.Set(address, name, false, false, nil)
	if err != nil {
		return err
	}

	if !existed {
		db.logger.WithFields(
			logrus.Fields{
				"id":      site.Id,
				"address": site.Address,
				"name":    site.Name,
			}).Info("breakpoint created")
	}

	return nil
}

// CreateBreakpointOnJitFunction sets a breakpoint on the first registered
// jit function whose name contains the query.
func (db *Debugger) CreateBreakpointOnJitFunction(
	query string,
) (
	jit.DebugInfo,
	error,
) {
	info, ok := db.jitRegistry.FindFirstByName(query)
	if !ok {
		return jit.DebugInfo{}, fmt.Errorf(
			"%w: %s",
			ErrFunctionNotFound,
			query)
	}

	err := db.CreateBreakpointAt(info.Address, info.Name)
	if err != nil {
		return jit.DebugInfo{}, err
	}

	return info, nil
}

// EnableJitMonitor hooks the tracee's jit registration interface.  The
// tracee must expose the __jit_debug_descriptor data symbol and the
// __jit_debug_register_code hook function.  Safe to call repeatedly.
func (db *Debugger) EnableJitMonitor() error {
	if db.jitMonitor != nil {
		return nil
	}

	_, ok := db.ResolveDataSymbol(jit.DescriptorSymbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, jit.DescriptorSymbol)
	}

	hookAddress, ok := db.executable.SymbolVirtualAddress(
		jit.RegisterHookSymbol)
	if !ok {
		return fmt.Errorf(
			"%w: %s",
			ErrHookSymbolNotFound,
			jit.RegisterHookSymbol)
	}

	monitor := jit.NewMonitor(db, db.jitRegistry, db)

	_, _, err := db.stopSites.Set(
		hookAddress,
		jit.RegisterHookSymbol,
		true, // internal
		true, // auto-continue
		monitor.OnRegistration)
	if err != nil {
		return fmt.Errorf("failed to hook jit registration: %w", err)
	}

	db.jitMonitor = monitor
	db.logger.WithField("hook", hookAddress).Info("jit monitor enabled")
	return nil
}
