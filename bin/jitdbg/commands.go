package main

import (
	"fmt"
	"strconv"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

func (r *repl) requireTarget() error {
	if r.db == nil || r.db.HasExited() {
		return ErrNoTargetSelected
	}
	return nil
}

func (r *repl) cmdContinue(args []string) error {
	err := r.requireTarget()
	if err != nil {
		return err
	}

	event, err := r.db.ResumeUntilStop()
	if err != nil {
		return err
	}

	fmt.Println(event)
	return nil
}

func (r *repl) cmdStep(args []string) error {
	err := r.requireTarget()
	if err != nil {
		return err
	}

	event, err := r.db.StepInstruction()
	if err != nil {
		return err
	}

	fmt.Println(event)
	return nil
}

func (r *repl) cmdBreakpoint(args []string) error {
	err := r.requireTarget()
	if err != nil {
		return err
	}

	if len(args) == 0 || args[0] == "list" {
		sites := r.db.StopSites().List()

		count := 0
		for _, site := range sites {
			if site.Internal {
				continue
			}

			name := site.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("%3d  %s  %s\n", site.Id, site.Address, name)
			count++
		}

		if count == 0 {
			fmt.Println("no breakpoints set")
		}
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf(
			"%w: expected breakpoint [list | set|remove|enable|disable <addr>]",
			ErrInvalidArgument)
	}

	address, err := ParseVirtualAddress(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "set":
		return r.db.CreateBreakpointAt(address, "")
	case "remove":
		return r.db.StopSites().Remove(address)
	case "enable", "disable":
		site := r.db.StopSites().GetAt(address)
		if site == nil {
			return fmt.Errorf(
				"%w: no breakpoint at %s",
				ErrInvalidArgument,
				address)
		}

		if args[0] == "enable" {
			return site.Enable()
		}
		return site.Disable()
	default:
		return fmt.Errorf(
			"%w: unknown breakpoint action: %s",
			ErrInvalidArgument,
			args[0])
	}
}

func (r *repl) cmdMemory(args []string) error {
	err := r.requireTarget()
	if err != nil {
		return err
	}

	if len(args) < 2 || args[0] != "read" {
		return fmt.Errorf(
			"%w: expected memory read <addr> [len]",
			ErrInvalidArgument)
	}

	address, err := ParseVirtualAddress(args[1])
	if err != nil {
		return err
	}

	numBytes := 32
	if len(args) > 2 {
		parsed, err := strconv.Atoi(args[2])
		if err != nil || parsed <= 0 {
			return fmt.Errorf(
				"%w: invalid read length: %s",
				ErrInvalidArgument,
				args[2])
		}
		numBytes = parsed
	}

	buffer := make([]byte, numBytes)
	err = r.db.ReadBytes(address, buffer)
	if err != nil {
		return err
	}

	for idx := 0; idx < len(buffer); idx += 16 {
		end := idx + 16
		if end > len(buffer) {
			end = len(buffer)
		}

		fmt.Printf("%s: % x\n", address+VirtualAddress(idx), buffer[idx:end])
	}
	return nil
}

func (r *repl) cmdStatus(args []string) error {
	err := r.requireTarget()
	if err != nil {
		return err
	}

	status, err := r.db.ProcessStatus()
	if err != nil {
		return err
	}

	pc, err := r.db.GetPc()
	if err != nil {
		return err
	}

	fmt.Printf(
		"pid: %d  comm: %s  state: %s  pc: %s\n",
		status.Pid,
		status.Comm,
		status.State,
		pc)

	symbol := r.db.Executable().SymbolContaining(pc)
	if symbol != nil {
		fmt.Printf("in %s\n", symbol.PrettyName)
	}
	return nil
}

func (r *repl) cmdDisassemble(args []string) error {
	err := r.requireTarget()
	if err != nil {
		return err
	}

	var address VirtualAddress
	if len(args) > 0 {
		address, err = ParseVirtualAddress(args[0])
		if err != nil {
			return err
		}
	} else {
		address, err = r.db.GetPc()
		if err != nil {
			return err
		}
	}

	return r.printDisassembly(address, 64, 8)
}

func (r *repl) printDisassembly(
	address VirtualAddress,
	numBytes int,
	maxInstructions int,
) error {
	instructions, err := r.db.Disassemble(address, numBytes, maxInstructions)
	if err != nil {
		return err
	}

	for _, instruction := range instructions {
		fmt.Println(" ", instruction)
	}
	return nil
}
