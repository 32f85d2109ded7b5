package jit

import (
	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/logflags"
)

// BreakpointService is the slice of debugger functionality the monitor uses
// to instrument watched functions.
type BreakpointService interface {
	CreateBreakpointAt(address VirtualAddress, name string) error
}

// Monitor reacts to the tracee's jit registration hook.  The debugger stops
// the tracee at __jit_debug_register_code, invokes OnRegistration, and
// resumes the tracee.  The tracee is never left stopped on the monitor's
// account.
type Monitor struct {
	remote RemoteMemory

	registry *Registry

	breakpoints BreakpointService

	logger logrus.FieldLogger
}

func NewMonitor(
	remote RemoteMemory,
	registry *Registry,
	breakpoints BreakpointService,
) *Monitor {
	return &Monitor{
		remote:      remote,
		registry:    registry,
		breakpoints: breakpoints,
		logger:      logflags.JitLogger(),
	}
}

// OnRegistration decodes the newest jit code entry and updates the
// registry.  Functions matching a watch pattern receive a breakpoint, at
// most once per address.  Repeated notifications for a known address are
// suppressed.
func (monitor *Monitor) OnRegistration() error {
	blob, err := ReadNewestSymfile(monitor.remote)
	if err != nil {
		monitor.logger.WithError(err).Warn("failed to decode jit descriptor")
		return err
	}

	if blob == nil {
		// Not a new function registration.
		return nil
	}

	info := ParseSymfile(blob)
	if !info.Valid() {
		monitor.logger.WithField("name", info.Name).
			Warn("dropping malformed jit registration (zero address or size)")
		return nil
	}

	alreadyPresent := monitor.registry.Upsert(info)
	if alreadyPresent {
		return nil
	}

	monitor.logger.WithFields(
		logrus.Fields{
			"name":    info.Name,
			"address": info.Address,
			"size":    info.Size,
			"file":    info.File,
		}).Info("jit function registered")

	if !monitor.registry.MatchesWatchPattern(info.Name) {
		return nil
	}

	if monitor.registry.IsInstrumented(info.Address) {
		return nil
	}

	err = monitor.breakpoints.CreateBreakpointAt(info.Address, info.Name)
	if err != nil {
		// Leave the address uninstrumented.
		monitor.logger.WithError(err).WithField("name", info.Name).
			Warn("failed to set breakpoint on watched jit function")
		return nil
	}

	monitor.registry.MarkInstrumented(info.Address)
	monitor.logger.WithFields(
		logrus.Fields{
			"name":    info.Name,
			"address": info.Address,
		}).Info("breakpoint set on watched jit function")

	return nil
}
