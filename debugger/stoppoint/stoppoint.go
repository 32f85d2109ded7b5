package stoppoint

import (
	"fmt"
	"sort"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/debugger/memory"
)

const (
	// int3
	stopSiteByte = byte(0xcc)
)

// StopSite is a software breakpoint.  When enabled, the instruction byte at
// Address is replaced by int3.  The original byte is restored on disable.
type StopSite struct {
	Id int

	Address VirtualAddress

	// Human readable label, e.g. the function the site was set on.
	Name string

	// Internal sites are hidden from breakpoint listings and automatically
	// resume the process after their callback runs.
	Internal bool

	AutoContinue bool

	// Invoked by the debugger when the process stops at this site.  May be
	// nil.
	Callback func() error

	enabled      bool
	originalByte byte

	memory *memory.VirtualMemory
}

func (site *StopSite) IsEnabled() bool {
	return site.enabled
}

func (site *StopSite) Enable() error {
	if site.enabled {
		return nil
	}

	buffer := []byte{0}
	err := site.memory.ReadBytes(site.Address, buffer)
	if err != nil {
		return fmt.Errorf(
			"failed to enable stop site at %s: %w",
			site.Address,
			err)
	}
	site.originalByte = buffer[0]

	err = site.memory.Write(site.Address, []byte{stopSiteByte})
	if err != nil {
		return fmt.Errorf(
			"failed to enable stop site at %s: %w",
			site.Address,
			err)
	}

	site.enabled = true
	return nil
}

func (site *StopSite) Disable() error {
	if !site.enabled {
		return nil
	}

	err := site.memory.Write(site.Address, []byte{site.originalByte})
	if err != nil {
		return fmt.Errorf(
			"failed to disable stop site at %s: %w",
			site.Address,
			err)
	}

	site.enabled = false
	return nil
}

// StopSitePool tracks all software breakpoints set in the tracee.  At most
// one site may exist per address.
type StopSitePool struct {
	memory *memory.VirtualMemory

	nextId int

	sites map[VirtualAddress]*StopSite
}

func NewStopSitePool(virtualMemory *memory.VirtualMemory) *StopSitePool {
	return &StopSitePool{
		memory: virtualMemory,
		nextId: 1,
		sites:  map[VirtualAddress]*StopSite{},
	}
}

// Set creates and enables a stop site at the given address.  Setting a site
// at an occupied address returns the existing site.
func (pool *StopSitePool) Set(
	address VirtualAddress,
	name string,
	internal bool,
	autoContinue bool,
	callback func() error,
) (
	*StopSite,
	bool, // true when the site already existed
	error,
) {
	existing, ok := pool.sites[address]
	if ok {
		return existing, true, nil
	}

	site := &StopSite{
		Id:           pool.nextId,
		Address:      address,
		Name:         name,
		Internal:     internal,
		AutoContinue: autoContinue,
		Callback:     callback,
		memory:       pool.memory,
	}

	err := site.Enable()
	if err != nil {
		return nil, false, err
	}

	pool.nextId++
	pool.sites[address] = site
	return site, false, nil
}

func (pool *StopSitePool) Remove(address VirtualAddress) error {
	site, ok := pool.sites[address]
	if !ok {
		return fmt.Errorf(
			"%w: no stop site at %s",
			ErrInvalidArgument,
			address)
	}

	err := site.Disable()
	if err != nil {
		return err
	}

	delete(pool.sites, address)
	return nil
}

func (pool *StopSitePool) GetAt(address VirtualAddress) *StopSite {
	return pool.sites[address]
}

func (pool *StopSitePool) GetEnabledAt(address VirtualAddress) *StopSite {
	site, ok := pool.sites[address]
	if !ok || !site.enabled {
		return nil
	}

	return site
}

func (pool *StopSitePool) Get(id int) *StopSite {
	for _, site := range pool.sites {
		if site.Id == id {
			return site
		}
	}

	return nil
}

// List returns all stop sites ordered by address.
func (pool *StopSitePool) List() []*StopSite {
	result := make([]*StopSite, 0, len(pool.sites))
	for _, site := range pool.sites {
		result = append(result, site)
	}

	sort.Slice(
		result,
		func(i int, j int) bool {
			return result[i].Address < result[j].Address
		})

	return result
}

// ReplaceStopSiteBytes patches the original instruction bytes back into a
// buffer read from the tracee's memory.
func (pool *StopSitePool) ReplaceStopSiteBytes(
	startAddress VirtualAddress,
	bytes []byte,
) {
	bufferRange := AddressRange{
		Low:  startAddress,
		High: startAddress + VirtualAddress(len(bytes)),
	}

	for address, site := range pool.sites {
		if !site.enabled {
			continue
		}

		if bufferRange.Contains(address) {
			bytes[address-startAddress] = site.originalByte
		}
	}
}

// DisableAll restores all patched bytes, e.g. before detaching from the
// tracee.
func (pool *StopSitePool) DisableAll() error {
	for _, site := range pool.sites {
		err := site.Disable()
		if err != nil {
			return err
		}
	}

	return nil
}
