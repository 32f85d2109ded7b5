package jit

import (
	"sort"
	"strings"
	"sync"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

// Registry is the debugger side record of all jit compiled functions
// announced by the tracee.  Functions are keyed by code address since the
// vm may register multiple specializations under the same name.
//
// A single mutex guards the records, the watch patterns, and the
// instrumented address set.  Registration events interleave with user
// commands, and the "match pattern then instrument" sequence must observe a
// consistent view of all three.
type Registry struct {
	mutex sync.Mutex

	records map[VirtualAddress]DebugInfo

	// Lowercased function name fragments.  Newly registered functions whose
	// names contain a fragment get a breakpoint automatically.
	watchPatterns []string

	// Addresses that already received an automatic breakpoint.
	instrumented map[VirtualAddress]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		records:      map[VirtualAddress]DebugInfo{},
		instrumented: map[VirtualAddress]struct{}{},
	}
}

// Upsert records the function, replacing any previous record at the same
// address.  It returns true when the address was already known.
func (registry *Registry) Upsert(info DebugInfo) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	_, alreadyPresent := registry.records[info.Address]
	registry.records[info.Address] = info
	return alreadyPresent
}

func (registry *Registry) Size() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	return len(registry.records)
}

// List returns all recorded functions ordered by code address.
func (registry *Registry) List() []DebugInfo {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	result := make([]DebugInfo, 0, len(registry.records))
	for _, info := range registry.records {
		result = append(result, info)
	}

	sort.Slice(
		result,
		func(i int, j int) bool {
			return result[i].Address < result[j].Address
		})

	return result
}

// FindFirstByName returns the lowest addressed recorded function whose name
// contains the query as a case-insensitive substring.
func (registry *Registry) FindFirstByName(query string) (DebugInfo, bool) {
	matched := registry.FindByName(query)
	if len(matched) == 0 {
		return DebugInfo{}, false
	}

	return matched[0], true
}

// FindByName returns all recorded functions whose name contains the query
// as a case-insensitive substring, ordered by code address.
func (registry *Registry) FindByName(query string) []DebugInfo {
	loweredQuery := strings.ToLower(query)

	result := []DebugInfo{}
	for _, info := range registry.List() {
		if strings.Contains(strings.ToLower(info.Name), loweredQuery) {
			result = append(result, info)
		}
	}

	return result
}

// AddWatchPatterns adds name fragments to the watch list and returns the
// number added.  Empty and blank fragments are skipped.
func (registry *Registry) AddWatchPatterns(patterns ...string) int {
	cleaned := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		cleaned = append(cleaned, strings.ToLower(pattern))
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	registry.watchPatterns = append(registry.watchPatterns, cleaned...)
	return len(cleaned)
}

func (registry *Registry) WatchPatterns() []string {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	result := make([]string, len(registry.watchPatterns))
	copy(result, registry.watchPatterns)
	return result
}

// MatchesWatchPattern returns true when any watch pattern occurs in the
// function name (case-insensitive).  With no patterns configured, nothing
// matches.
func (registry *Registry) MatchesWatchPattern(name string) bool {
	loweredName := strings.ToLower(name)

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	for _, pattern := range registry.watchPatterns {
		if strings.Contains(loweredName, pattern) {
			return true
		}
	}

	return false
}

func (registry *Registry) IsInstrumented(address VirtualAddress) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	_, ok := registry.instrumented[address]
	return ok
}

func (registry *Registry) MarkInstrumented(address VirtualAddress) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	registry.instrumented[address] = struct{}{}
}
