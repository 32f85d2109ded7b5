package jit

import (
	"strconv"
	"strings"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

const (
	unknownName = "unknown"
	unknownFile = "unknown"
)

// DebugInfo describes a single jit compiled function, as decoded from a
// symfile blob.
type DebugInfo struct {
	// Entry point of the compiled code in the tracee's address space.
	Address VirtualAddress

	// Size of the compiled code in bytes.
	Size uint64

	Name string

	// Source file the function was compiled from.
	File string
}

// Valid returns true when the info is usable for breakpoints.  Functions
// without a code address or size are decorative.
func (info DebugInfo) Valid() bool {
	return info.Address != 0 && info.Size != 0
}

// ParseSymfile decodes a symfile blob of the form
//
//	---
//	name: Foo
//	start: 0x7f0000001000
//	size: 64
//	file: foo.dart
//
// The format is a flat "key: value" listing.  Parsing never fails.
// Unrecognized keys and malformed lines are ignored, repeated keys keep the
// last value, and missing keys keep their defaults.
func ParseSymfile(content []byte) DebugInfo {
	info := DebugInfo{
		Name: unknownName,
		File: unknownFile,
	}

	// The blob may carry a trailing nul terminator.
	blob := strings.TrimRight(string(content), "\x00")

	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || line == "---" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		// Keys match exactly.  Values keep everything after the colon with
		// leading whitespace dropped.
		value = strings.TrimLeft(value, " \t")

		switch key {
		case "name":
			info.Name = value
		case "start":
			address, err := strconv.ParseUint(value, 0, 64)
			if err == nil {
				info.Address = VirtualAddress(address)
			}
		case "size":
			size, err := strconv.ParseUint(value, 0, 64)
			if err == nil {
				info.Size = size
			}
		case "file":
			info.File = value
		}
	}

	return info
}
