package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/debugger/jit"
)

const (
	maxListNameWidth = 30
	maxListFileWidth = 40
)

func (r *repl) cmdJit(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf(
			"%w: expected jit <setup | list | watch | break | add | disasm>",
			ErrInvalidArgument)
	}

	err := r.requireTarget()
	if err != nil {
		return err
	}

	switch args[0] {
	case "setup":
		return r.cmdJitSetup(args[1:])
	case "list":
		return r.cmdJitList(args[1:])
	case "watch":
		return r.cmdJitWatch(args[1:])
	case "break":
		return r.cmdJitBreak(args[1:])
	case "add":
		return r.cmdJitAdd(args[1:])
	case "disasm":
		return r.cmdJitDisasm(args[1:])
	default:
		return fmt.Errorf(
			"%w: unknown jit action: %s",
			ErrInvalidArgument,
			args[0])
	}
}

func (r *repl) cmdJitSetup(args []string) error {
	if r.db.JitMonitorEnabled() {
		fmt.Println("jit registration monitor already enabled")
		return nil
	}

	err := r.db.EnableJitMonitor()
	if err != nil {
		return err
	}

	fmt.Println("jit registration monitor enabled")
	return nil
}

func truncateName(name string) string {
	if len(name) <= maxListNameWidth {
		return name
	}

	return name[:maxListNameWidth-3] + "..."
}

// truncateFile keeps the file's base name readable when the path is long.
func truncateFile(file string) string {
	if len(file) <= maxListFileWidth {
		return file
	}

	base := ".../" + filepath.Base(file)
	if len(base) > maxListFileWidth {
		return base[:maxListFileWidth-3] + "..."
	}

	return base
}

func (r *repl) cmdJitList(args []string) error {
	infos := r.db.JitRegistry().List()
	if len(infos) == 0 {
		fmt.Println("no jit compiled functions registered")
		return nil
	}

	fmt.Printf(
		"%-18s %8s  %-*s %s\n",
		"address",
		"size",
		maxListNameWidth,
		"name",
		"file")
	for _, info := range infos {
		fmt.Printf(
			"%s %8d  %-*s %s\n",
			info.Address,
			info.Size,
			maxListNameWidth,
			truncateName(info.Name),
			truncateFile(info.File))
	}

	fmt.Printf("%d jit compiled function(s)\n", len(infos))
	return nil
}

func (r *repl) cmdJitWatch(args []string) error {
	if len(args) == 0 {
		patterns := r.db.JitRegistry().WatchPatterns()
		if len(patterns) == 0 {
			fmt.Println("no watch patterns set")
			return nil
		}

		for _, pattern := range patterns {
			fmt.Println(" ", pattern)
		}
		return nil
	}

	added := r.db.JitRegistry().AddWatchPatterns(args...)
	fmt.Printf("added %d watch pattern(s): %s\n", added, strings.Join(args, ", "))
	return nil
}

func (r *repl) cmdJitBreak(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected jit break <name>", ErrInvalidArgument)
	}

	info, err := r.db.CreateBreakpointOnJitFunction(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("breakpoint set on %s at %s\n", info.Name, info.Address)
	return nil
}

func (r *repl) cmdJitAdd(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf(
			"%w: expected jit add <addr> <size> <name> [file]",
			ErrInvalidArgument)
	}

	address, err := ParseVirtualAddress(args[0])
	if err != nil {
		return err
	}
	if address == 0 {
		return fmt.Errorf("%w: null function address", ErrInvalidAddress)
	}

	size, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid size: %s", ErrInvalidArgument, args[1])
	}

	info := jit.DebugInfo{
		Address: address,
		Size:    size,
		Name:    args[2],
		File:    "unknown",
	}
	if len(args) > 3 {
		info.File = args[3]
	}

	alreadyPresent := r.db.JitRegistry().Upsert(info)
	if alreadyPresent {
		fmt.Printf("updated %s at %s\n", info.Name, info.Address)
	} else {
		fmt.Printf("added %s at %s\n", info.Name, info.Address)
	}
	return nil
}

func (r *repl) cmdJitDisasm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected jit disasm <name>", ErrInvalidArgument)
	}

	matched := r.db.JitRegistry().FindByName(args[0])
	if len(matched) == 0 {
		return fmt.Errorf("%w: %s", ErrFunctionNotFound, args[0])
	}

	for _, info := range matched {
		fmt.Printf("%s (%s, %d bytes):\n", info.Name, info.Address, info.Size)
		if info.Size == 0 {
			continue
		}

		numBytes := int(info.Size)
		if numBytes > 4096 {
			numBytes = 4096
		}

		err := r.printDisassembly(info.Address, numBytes, 0)
		if err != nil {
			return err
		}
	}
	return nil
}
