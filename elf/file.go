package elf

import (
	"encoding/binary"
	"fmt"
	"os"
)

type File struct {
	ElfHeader

	Sections []*Section

	sectionsByName map[string]*Section
}

func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read elf file %s: %w", path, err)
	}

	file, err := ParseBytes(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse elf file %s: %w", path, err)
	}

	return file, nil
}

// ParseBytes parses a little-endian x86-64 elf64 image.  Only the pieces
// needed for symbol resolution are extracted.
func ParseBytes(content []byte) (*File, error) {
	file := &File{
		sectionsByName: map[string]*Section{},
	}

	err := file.parseHeader(content)
	if err != nil {
		return nil, err
	}

	err = file.parseSectionHeaders(content)
	if err != nil {
		return nil, err
	}

	err = file.bindSectionNames()
	if err != nil {
		return nil, err
	}

	err = file.parseSymbolTables()
	if err != nil {
		return nil, err
	}

	return file, nil
}

func (file *File) parseHeader(content []byte) error {
	if len(content) < Elf64HeaderSize {
		return fmt.Errorf("invalid elf file. truncated header")
	}

	_, err := binary.Decode(content, binary.LittleEndian, &file.ElfHeader)
	if err != nil {
		return fmt.Errorf("failed to parse elf header: %w", err)
	}

	identifier := file.Identifier
	for idx, val := range IdentifierMagic {
		if identifier.Magic[idx] != val {
			return fmt.Errorf("invalid elf file. incorrect magic")
		}
	}

	if identifier.Class != Class64 {
		return fmt.Errorf(
			"unsupported elf class (%s). only 64-bit elf is supported",
			identifier.Class)
	}

	if identifier.DataEncoding != DataEncodingTwosComplementLittleEndian {
		return fmt.Errorf(
			"unsupported elf data encoding (%s)",
			identifier.DataEncoding)
	}

	if identifier.IdentifierVersion != IdentifierVersion {
		return fmt.Errorf(
			"unsupported elf identifier version (%d)",
			identifier.IdentifierVersion)
	}

	if file.MachineArchitecture != MachineArchitectureX86_64 {
		return fmt.Errorf(
			"unsupported machine architecture (%s)",
			file.MachineArchitecture)
	}

	if file.FormatVersion != FormatVersion {
		return fmt.Errorf(
			"unsupported elf format version (%d)",
			file.FormatVersion)
	}

	if file.ElfHeaderSize != Elf64HeaderSize {
		return fmt.Errorf(
			"invalid elf header size (%d)",
			file.ElfHeaderSize)
	}

	return nil
}

func (file *File) parseSectionHeaders(content []byte) error {
	if file.NumSectionHeaderEntries == 0 {
		return nil
	}

	if file.SectionHeaderEntrySize != Elf64SectionHeaderEntrySize {
		return fmt.Errorf(
			"invalid section header entry size (%d)",
			file.SectionHeaderEntrySize)
	}

	begin := file.SectionHeaderOffset
	end := begin +
		uint64(file.NumSectionHeaderEntries)*Elf64SectionHeaderEntrySize
	if end > uint64(len(content)) {
		return fmt.Errorf("invalid elf file. truncated section headers")
	}

	table := content[begin:end]
	for idx := 0; idx < int(file.NumSectionHeaderEntries); idx++ {
		section := &Section{}
		_, err := binary.Decode(
			table,
			binary.LittleEndian,
			&section.SectionHeaderEntry)
		if err != nil {
			return fmt.Errorf("failed to parse section header %d: %w", idx, err)
		}
		table = table[Elf64SectionHeaderEntrySize:]

		if section.SectionType != SectionTypeNull &&
			section.SectionType != SectionTypeNoSpace {

			sectionEnd := section.Offset + section.Size
			if sectionEnd > uint64(len(content)) {
				return fmt.Errorf(
					"invalid elf file. truncated section %d content",
					idx)
			}

			section.Content = content[section.Offset:sectionEnd]
		}

		file.Sections = append(file.Sections, section)
	}

	return nil
}

func (file *File) bindSectionNames() error {
	if len(file.Sections) == 0 {
		return nil
	}

	if int(file.SectionStringTableIndex) >= len(file.Sections) {
		return fmt.Errorf(
			"invalid section string table index (%d)",
			file.SectionStringTableIndex)
	}

	names := file.Sections[file.SectionStringTableIndex]
	if names.SectionType != SectionTypeStringTable {
		return fmt.Errorf(
			"section %d is not a string table section",
			file.SectionStringTableIndex)
	}

	for idx, section := range file.Sections {
		name, err := names.StringAt(section.NameIndex)
		if err != nil {
			return fmt.Errorf("failed to name section %d: %w", idx, err)
		}

		section.Name = name
		file.sectionsByName[name] = section
	}

	return nil
}

func (file *File) parseSymbolTables() error {
	for _, section := range file.Sections {
		if section.SectionType != SectionTypeSymbolTable &&
			section.SectionType != SectionTypeDynamicSymbolTable {

			continue
		}

		if int(section.Link) >= len(file.Sections) {
			return fmt.Errorf(
				"invalid string table link in section %s",
				section.Name)
		}

		err := section.parseSymbols(file.Sections[section.Link])
		if err != nil {
			return err
		}
	}

	return nil
}

func (file *File) GetSection(name string) *Section {
	return file.sectionsByName[name]
}

// Symbols returns all defined symbols from the symbol table sections
// (.symtab entries shadow .dynsym entries with the same name).
func (file *File) Symbols() []*Symbol {
	byName := map[string]struct{}{}
	result := []*Symbol{}

	collect := func(section *Section) {
		if section == nil {
			return
		}
		for _, symbol := range section.Symbols {
			if symbol.Name == "" ||
				symbol.SectionIndex == SectionIndexUndefined {

				continue
			}
			if _, ok := byName[symbol.Name]; ok {
				continue
			}
			byName[symbol.Name] = struct{}{}
			result = append(result, symbol)
		}
	}

	collect(file.GetSection(".symtab"))
	collect(file.GetSection(".dynsym"))
	return result
}
