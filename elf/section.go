package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ianlancetaylor/demangle"
)

type Symbol struct {
	SymbolEntry

	Name string

	// The unmangled form of Name.  Same as Name when the name is not a
	// mangled c++ / rust symbol.
	PrettyName string
}

func (symbol Symbol) Type() SymbolType {
	return SymbolInfoToType(symbol.Info)
}

func (symbol Symbol) Binding() SymbolBinding {
	return SymbolInfoToBinding(symbol.Info)
}

type Section struct {
	SectionHeaderEntry

	Name string

	// The section's slice of the file content.  Empty for no-space sections.
	Content []byte

	// Only populated for symbol table sections.
	Symbols []*Symbol
}

// StringAt returns the null-terminated string starting at the given offset
// in a string table section.
func (section *Section) StringAt(offset uint32) (string, error) {
	if section.SectionType != SectionTypeStringTable {
		return "", fmt.Errorf(
			"cannot read string from non-string-table section %s",
			section.Name)
	}

	if int(offset) >= len(section.Content) {
		return "", fmt.Errorf(
			"string offset %d out of bound in section %s",
			offset,
			section.Name)
	}

	end := bytes.IndexByte(section.Content[offset:], 0)
	if end == -1 {
		return "", fmt.Errorf(
			"unterminated string at offset %d in section %s",
			offset,
			section.Name)
	}

	return string(section.Content[offset : int(offset)+end]), nil
}

func (section *Section) parseSymbols(stringTable *Section) error {
	if section.EntrySize != Elf64SymbolEntrySize {
		return fmt.Errorf(
			"invalid symbol entry size in section %s (%d != %d)",
			section.Name,
			section.EntrySize,
			Elf64SymbolEntrySize)
	}

	if uint64(len(section.Content)) != section.Size ||
		section.Size%Elf64SymbolEntrySize != 0 {

		return fmt.Errorf(
			"invalid symbol table section %s size (%d)",
			section.Name,
			section.Size)
	}

	numEntries := int(section.Size / Elf64SymbolEntrySize)
	symbols := make([]*Symbol, 0, numEntries)

	content := section.Content
	for idx := 0; idx < numEntries; idx++ {
		entry := SymbolEntry{}
		_, err := binary.Decode(content, binary.LittleEndian, &entry)
		if err != nil {
			return fmt.Errorf(
				"failed to parse symbol entry %d in section %s: %w",
				idx,
				section.Name,
				err)
		}
		content = content[Elf64SymbolEntrySize:]

		name, err := stringTable.StringAt(entry.NameIndex)
		if err != nil {
			return fmt.Errorf(
				"failed to parse symbol entry %d in section %s: %w",
				idx,
				section.Name,
				err)
		}

		symbols = append(
			symbols,
			&Symbol{
				SymbolEntry: entry,
				Name:        name,
				PrettyName:  demangle.Filter(name),
			})
	}

	sort.SliceStable(
		symbols,
		func(i int, j int) bool {
			return symbols[i].Value < symbols[j].Value
		})

	section.Symbols = symbols
	return nil
}
