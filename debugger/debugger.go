package debugger

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/debugger/jit"
	"github.com/pattyshack/jitdbg/debugger/loadedelf"
	"github.com/pattyshack/jitdbg/debugger/memory"
	"github.com/pattyshack/jitdbg/debugger/stoppoint"
	"github.com/pattyshack/jitdbg/logflags"
	"github.com/pattyshack/jitdbg/procfs"
	"github.com/pattyshack/jitdbg/ptrace"
)

// StopEvent describes why the tracee stopped running.
type StopEvent struct {
	Exited     bool
	ExitStatus int

	Signal syscall.Signal

	Pc VirtualAddress

	// The stop site at Pc, if any.
	Site *stoppoint.StopSite
}

func (event *StopEvent) String() string {
	if event.Exited {
		return fmt.Sprintf("process exited with status %d", event.ExitStatus)
	}

	if event.Site != nil {
		label := event.Site.Name
		if label == "" {
			label = event.Site.Address.String()
		}
		return fmt.Sprintf("stopped at breakpoint %s (pc: %s)", label, event.Pc)
	}

	return fmt.Sprintf("stopped by %s (pc: %s)", event.Signal, event.Pc)
}

// Debugger drives a single traced process.  All methods must be invoked
// from the same goroutine.  The tracee must be in a stopped state for all
// operations other than ResumeUntilStop / StepInstruction.
type Debugger struct {
	Pid int

	// True when the debugger spawned the tracee (and hence should kill it on
	// close instead of detaching).
	ownsProcess bool

	tracer       *ptrace.Tracer
	memory       *memory.VirtualMemory
	disassembler *memory.Disassembler
	stopSites    *stoppoint.StopSitePool

	executable *loadedelf.Executable

	jitRegistry *jit.Registry
	jitMonitor  *jit.Monitor

	exited bool

	logger logrus.FieldLogger
}

// StartAndAttachTo spawns the command and attaches to it before its first
// instruction.
func StartAndAttachTo(name string, args ...string) (*Debugger, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	tracer, err := ptrace.StartAndAttachToProcess(cmd)
	if err != nil {
		return nil, err
	}

	return newDebugger(tracer, true)
}

// AttachTo attaches to a running process.
func AttachTo(pid int) (*Debugger, error) {
	tracer, err := ptrace.AttachToProcess(pid)
	if err != nil {
		return nil, err
	}

	return newDebugger(tracer, false)
}

func newDebugger(tracer *ptrace.Tracer, ownsProcess bool) (*Debugger, error) {
	db := &Debugger{
		Pid:         tracer.Pid,
		ownsProcess: ownsProcess,
		tracer:      tracer,
		jitRegistry: jit.NewRegistry(),
		logger:      logflags.DebuggerLogger(),
	}

	// The tracee stops with a signal immediately after attach / exec.
	_, err := db.waitForStop()
	if err != nil {
		db.Close()
		return nil, err
	}

	err = tracer.SetOptions(ptrace.O_EXITKILL)
	if err != nil {
		db.Close()
		return nil, err
	}

	db.memory = memory.NewVirtualMemory(tracer)
	db.stopSites = stoppoint.NewStopSitePool(db.memory)
	db.disassembler = memory.NewDisassembler(db.memory, db.stopSites)

	executable, err := loadedelf.LoadExecutable(db.Pid)
	if err != nil {
		db.Close()
		return nil, err
	}
	db.executable = executable

	db.logger.WithFields(
		logrus.Fields{
			"pid":        db.Pid,
			"executable": executable.Path,
			"load_bias":  executable.LoadBias,
		}).Info("attached to process")

	return db, nil
}

func (db *Debugger) Close() error {
	if db.tracer == nil {
		return nil
	}

	if !db.exited {
		if db.stopSites != nil {
			err := db.stopSites.DisableAll()
			if err != nil {
				db.logger.WithError(err).Warn("failed to remove stop sites")
			}
		}

		err := db.tracer.Detach()
		if err != nil {
			db.logger.WithError(err).Warn("failed to detach from process")
		}

		if db.ownsProcess {
			syscall.Kill(db.Pid, syscall.SIGKILL)
			syscall.Wait4(db.Pid, nil, 0, nil)
		}
	}

	err := db.tracer.Close()
	db.tracer = nil
	return err
}

func (db *Debugger) Executable() *loadedelf.Executable {
	return db.executable
}

func (db *Debugger) StopSites() *stoppoint.StopSitePool {
	return db.stopSites
}

func (db *Debugger) JitRegistry() *jit.Registry {
	return db.jitRegistry
}

func (db *Debugger) JitMonitorEnabled() bool {
	return db.jitMonitor != nil
}

func (db *Debugger) HasExited() bool {
	return db.exited
}

func (db *Debugger) waitForStop() (*StopEvent, error) {
	var status syscall.WaitStatus
	_, err := syscall.Wait4(db.Pid, &status, 0, nil)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to wait for process %d: %w",
			db.Pid,
			err)
	}

	if status.Exited() {
		db.exited = true
		return &StopEvent{
			Exited:     true,
			ExitStatus: status.ExitStatus(),
		}, nil
	}

	if status.Signaled() {
		db.exited = true
		return &StopEvent{
			Exited:     true,
			ExitStatus: 128 + int(status.Signal()),
		}, nil
	}

	event := &StopEvent{
		Signal: status.StopSignal(),
	}

	registers, err := db.tracer.GetGeneralRegisters()
	if err != nil {
		return nil, err
	}
	event.Pc = VirtualAddress(registers.Rip)

	if event.Signal == syscall.SIGTRAP {
		sigInfo, err := db.tracer.GetSigInfo()
		if err != nil {
			return nil, err
		}

		if TrapCodeToKind(sigInfo.Code) == SoftwareTrap {
			// int3 leaves the pc one past the patched byte.
			event.Pc -= 1
			registers.Rip = uint64(event.Pc)
			err = db.tracer.SetGeneralRegisters(registers)
			if err != nil {
				return nil, err
			}
		}
	}

	// stopSites is nil during the initial attach stop.
	if db.stopSites != nil {
		event.Site = db.stopSites.GetEnabledAt(event.Pc)
	}
	return event, nil
}

// stepOverStopSite executes the original instruction under an enabled stop
// site at the current pc, if any.
func (db *Debugger) stepOverStopSite() error {
	registers, err := db.tracer.GetGeneralRegisters()
	if err != nil {
		return err
	}

	site := db.stopSites.GetEnabledAt(VirtualAddress(registers.Rip))
	if site == nil {
		return nil
	}

	err = site.Disable()
	if err != nil {
		return err
	}

	err = db.tracer.SingleStep()
	if err != nil {
		return err
	}

	event, err := db.waitForStop()
	if err != nil {
		return err
	}
	if event.Exited {
		return nil
	}

	return site.Enable()
}

// ResumeUntilStop resumes the tracee until it exits or stops for a reason
// the user should see.  Auto-continue sites run their callbacks and resume
// transparently.
func (db *Debugger) ResumeUntilStop() (*StopEvent, error) {
	if db.exited {
		return nil, ErrProcessExited
	}

	for {
		err := db.stepOverStopSite()
		if err != nil {
			return nil, err
		}
		if db.exited {
			return &StopEvent{Exited: true}, nil
		}

		err = db.tracer.Resume(0)
		if err != nil {
			return nil, err
		}

		event, err := db.waitForStop()
		if err != nil {
			return nil, err
		}

		if event.Exited {
			return event, nil
		}

		if event.Site != nil && event.Site.Callback != nil {
			err = event.Site.Callback()
			if err != nil {
				db.logger.WithError(err).WithField(
					"address",
					event.Site.Address,
				).Warn("stop site callback failed")
			}
		}

		if event.Site != nil && event.Site.AutoContinue {
			continue
		}

		return event, nil
	}
}

// StepInstruction executes a single instruction.
func (db *Debugger) StepInstruction() (*StopEvent, error) {
	if db.exited {
		return nil, ErrProcessExited
	}

	registers, err := db.tracer.GetGeneralRegisters()
	if err != nil {
		return nil, err
	}

	if db.stopSites.GetEnabledAt(VirtualAddress(registers.Rip)) != nil {
		err = db.stepOverStopSite()
		if err != nil {
			return nil, err
		}
	} else {
		err = db.tracer.SingleStep()
		if err != nil {
			return nil, err
		}

		_, err = db.waitForStop()
		if err != nil {
			return nil, err
		}
	}

	if db.exited {
		return &StopEvent{Exited: true}, nil
	}

	registers, err = db.tracer.GetGeneralRegisters()
	if err != nil {
		return nil, err
	}

	pc := VirtualAddress(registers.Rip)
	return &StopEvent{
		Pc:   pc,
		Site: db.stopSites.GetEnabledAt(pc),
	}, nil
}

func (db *Debugger) ProcessStatus() (procfs.ProcessStatus, error) {
	return procfs.GetProcessStatus(db.Pid)
}

func (db *Debugger) GetPc() (VirtualAddress, error) {
	registers, err := db.tracer.GetGeneralRegisters()
	if err != nil {
		return 0, err
	}

	return VirtualAddress(registers.Rip), nil
}

func (db *Debugger) Disassemble(
	startAddress VirtualAddress,
	numBytes int,
	maxInstructions int,
) (
	[]memory.Instruction,
	error,
) {
	return db.disassembler.Disassemble(startAddress, numBytes, maxInstructions)
}
