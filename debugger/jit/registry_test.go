package jit

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

type RegistrySuite struct{}

func TestRegistry(t *testing.T) {
	suite.RunTests(t, &RegistrySuite{})
}

func debugInfo(address VirtualAddress, name string) DebugInfo {
	return DebugInfo{
		Address: address,
		Size:    64,
		Name:    name,
		File:    "a.dart",
	}
}

func (RegistrySuite) TestUpsertReportsExistingAddress(t *testing.T) {
	registry := NewRegistry()

	expect.False(t, registry.Upsert(debugInfo(0x100, "Foo")))
	expect.True(t, registry.Upsert(debugInfo(0x100, "Foo")))
	expect.True(t, registry.Upsert(debugInfo(0x100, "Renamed")))
	expect.Equal(t, 1, registry.Size())

	expect.False(t, registry.Upsert(debugInfo(0x200, "Bar")))
	expect.Equal(t, 2, registry.Size())
}

func (RegistrySuite) TestUpsertReplacesRecord(t *testing.T) {
	registry := NewRegistry()

	registry.Upsert(debugInfo(0x100, "Old"))
	registry.Upsert(debugInfo(0x100, "New"))

	infos := registry.List()
	expect.Equal(t, 1, len(infos))
	expect.Equal(t, "New", infos[0].Name)
}

func (RegistrySuite) TestListOrderedByAddress(t *testing.T) {
	registry := NewRegistry()

	registry.Upsert(debugInfo(0x300, "C"))
	registry.Upsert(debugInfo(0x100, "A"))
	registry.Upsert(debugInfo(0x200, "B"))

	infos := registry.List()
	expect.Equal(t, 3, len(infos))
	expect.Equal(t, VirtualAddress(0x100), infos[0].Address)
	expect.Equal(t, VirtualAddress(0x200), infos[1].Address)
	expect.Equal(t, VirtualAddress(0x300), infos[2].Address)
}

func (RegistrySuite) TestFindByNameIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry()

	registry.Upsert(debugInfo(0x100, "MyFooBar"))
	registry.Upsert(debugInfo(0x200, "Unrelated"))

	expect.Equal(t, 1, len(registry.FindByName("foo")))
	expect.Equal(t, 1, len(registry.FindByName("FOO")))
	expect.Equal(t, 1, len(registry.FindByName("MyFooBar")))
	expect.Equal(t, 0, len(registry.FindByName("baz")))
}

func (RegistrySuite) TestFindFirstByNameReturnsLowestAddress(t *testing.T) {
	registry := NewRegistry()

	registry.Upsert(debugInfo(0x300, "FooHigh"))
	registry.Upsert(debugInfo(0x100, "FooLow"))

	info, ok := registry.FindFirstByName("foo")
	expect.True(t, ok)
	expect.Equal(t, "FooLow", info.Name)

	_, ok = registry.FindFirstByName("missing")
	expect.False(t, ok)
}

func (RegistrySuite) TestWatchPatternMatching(t *testing.T) {
	registry := NewRegistry()

	// Nothing matches without patterns.
	expect.False(t, registry.MatchesWatchPattern("MyFooBar"))

	expect.Equal(t, 1, registry.AddWatchPatterns("Foo"))

	expect.True(t, registry.MatchesWatchPattern("MyFooBar"))
	expect.True(t, registry.MatchesWatchPattern("myfoobar"))
	expect.True(t, registry.MatchesWatchPattern("MYFOOBAR"))
	expect.False(t, registry.MatchesWatchPattern("Unrelated"))
}

func (RegistrySuite) TestEmptyWatchPatternsSkipped(t *testing.T) {
	registry := NewRegistry()

	expect.Equal(t, 0, registry.AddWatchPatterns(""))
	expect.Equal(t, 1, registry.AddWatchPatterns("ok", "   "))
	expect.Equal(t, []string{"ok"}, registry.WatchPatterns())
}

func (RegistrySuite) TestInstrumentedAddresses(t *testing.T) {
	registry := NewRegistry()

	expect.False(t, registry.IsInstrumented(0x100))

	registry.MarkInstrumented(0x100)
	expect.True(t, registry.IsInstrumented(0x100))
	expect.False(t, registry.IsInstrumented(0x200))
}
