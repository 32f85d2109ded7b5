package jit

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

type SymfileSuite struct{}

func TestSymfile(t *testing.T) {
	suite.RunTests(t, &SymfileSuite{})
}

func (SymfileSuite) TestParseCompleteSymfile(t *testing.T) {
	blob := "---\nname: Foo\nstart: 0x1000\nsize: 64\nfile: a.dart\n"

	info := ParseSymfile([]byte(blob))
	expect.Equal(t, VirtualAddress(0x1000), info.Address)
	expect.Equal(t, uint64(64), info.Size)
	expect.Equal(t, "Foo", info.Name)
	expect.Equal(t, "a.dart", info.File)
	expect.True(t, info.Valid())
}

func (SymfileSuite) TestParseEmptyBlob(t *testing.T) {
	info := ParseSymfile(nil)
	expect.Equal(t, VirtualAddress(0), info.Address)
	expect.Equal(t, uint64(0), info.Size)
	expect.Equal(t, "unknown", info.Name)
	expect.Equal(t, "unknown", info.File)
	expect.False(t, info.Valid())
}

func (SymfileSuite) TestParseDecimalAndHexNumbers(t *testing.T) {
	info := ParseSymfile([]byte("start: 4096\nsize: 0x40\n"))
	expect.Equal(t, VirtualAddress(0x1000), info.Address)
	expect.Equal(t, uint64(64), info.Size)
}

func (SymfileSuite) TestParseRepeatedKeysKeepLast(t *testing.T) {
	blob := "name: First\nname: Second\nstart: 0x1\nstart: 0x2\n"

	info := ParseSymfile([]byte(blob))
	expect.Equal(t, "Second", info.Name)
	expect.Equal(t, VirtualAddress(2), info.Address)
}

func (SymfileSuite) TestParseIgnoresMalformedLines(t *testing.T) {
	blob := "---\ngarbage without separator\nname: Foo\nstart: not-a-number\n" +
		"unknown-key: value\nsize: 8\n"

	info := ParseSymfile([]byte(blob))
	expect.Equal(t, "Foo", info.Name)
	expect.Equal(t, VirtualAddress(0), info.Address)
	expect.Equal(t, uint64(8), info.Size)
	expect.False(t, info.Valid())
}

func (SymfileSuite) TestParseValueWithColon(t *testing.T) {
	// Only the first colon separates key from value.
	info := ParseSymfile([]byte("name: Foo::bar\n"))
	expect.Equal(t, "Foo::bar", info.Name)
}

func (SymfileSuite) TestParseKeysMatchExactly(t *testing.T) {
	// Indented or misspelled keys are not recognized.
	info := ParseSymfile([]byte("  name: Indented\nName: Capitalized\nsize: 16\n"))
	expect.Equal(t, "unknown", info.Name)
	expect.Equal(t, uint64(16), info.Size)
}

func (SymfileSuite) TestParseTrimsLeadingValueWhitespace(t *testing.T) {
	info := ParseSymfile([]byte("name: \t  Foo\r\nsize: 16\r\n"))
	expect.Equal(t, "Foo", info.Name)
	expect.Equal(t, uint64(16), info.Size)
}

func (SymfileSuite) TestParseNulTerminatedBlob(t *testing.T) {
	info := ParseSymfile([]byte("name: Foo\nsize: 16\n\x00"))
	expect.Equal(t, "Foo", info.Name)
	expect.Equal(t, uint64(16), info.Size)
}

func (SymfileSuite) TestValidRequiresAddressAndSize(t *testing.T) {
	expect.False(t, DebugInfo{Address: 0x1000}.Valid())
	expect.False(t, DebugInfo{Size: 64}.Valid())
	expect.True(t, DebugInfo{Address: 0x1000, Size: 64}.Valid())
}
