package debugger

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/jitdbg/debugger/common"
	"github.com/pattyshack/jitdbg/procfs"
)

func processExists(pid int) bool {
	err := syscall.Kill(pid, 0)
	return !errors.Is(err, syscall.ESRCH)
}

type DebuggerSuite struct{}

func TestDebugger(t *testing.T) {
	suite.RunTests(t, &DebuggerSuite{})
}

func (DebuggerSuite) TestLaunchProcess(t *testing.T) {
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	expect.True(t, processExists(db.Pid))

	status, err := db.ProcessStatus()
	expect.Nil(t, err)
	expect.Equal(t, procfs.TracingStop, status.State)
}

func (DebuggerSuite) TestLaunchNoSuchProgram(t *testing.T) {
	db, err := StartAndAttachTo("invalid_program")
	expect.Nil(t, db)
	expect.Error(t, err, "failed to start process")
}

func (DebuggerSuite) TestAttachSuccess(t *testing.T) {
	cmd := exec.Command("yes")
	expect.Nil(t, cmd.Start())
	defer cmd.Process.Kill()

	db, err := AttachTo(cmd.Process.Pid)
	expect.Nil(t, err)
	defer db.Close()

	status, err := procfs.GetProcessStatus(cmd.Process.Pid)
	expect.Nil(t, err)
	expect.Equal(t, procfs.TracingStop, status.State)
}

func (DebuggerSuite) TestAttachNoSuchProcess(t *testing.T) {
	db, err := AttachTo(0)
	expect.Nil(t, db)
	expect.Error(t, err, "failed to attach to process")
}

func (DebuggerSuite) TestStepInstruction(t *testing.T) {
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	startPc, err := db.GetPc()
	expect.Nil(t, err)
	expect.True(t, startPc != 0)

	event, err := db.StepInstruction()
	expect.Nil(t, err)
	expect.False(t, event.Exited)
	expect.True(t, event.Pc != 0)
}

func (DebuggerSuite) TestReadMemoryAtPc(t *testing.T) {
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	pc, err := db.GetPc()
	expect.Nil(t, err)

	buffer := make([]byte, 4)
	expect.Nil(t, db.ReadBytes(pc, buffer))
}

func (DebuggerSuite) TestRunUntilExit(t *testing.T) {
	db, err := StartAndAttachTo("true")
	expect.Nil(t, err)
	defer db.Close()

	event, err := db.ResumeUntilStop()
	expect.Nil(t, err)
	expect.True(t, event.Exited)
	expect.Equal(t, 0, event.ExitStatus)
	expect.True(t, db.HasExited())

	_, err = db.ResumeUntilStop()
	expect.True(t, errors.Is(err, ErrProcessExited))
}

func (DebuggerSuite) TestJitMonitorRequiresDescriptorSymbol(t *testing.T) {
	// Ordinary binaries do not expose the jit registration interface.
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	expect.False(t, db.JitMonitorEnabled())

	err = db.EnableJitMonitor()
	expect.True(t, errors.Is(err, ErrSymbolNotFound))
	expect.False(t, db.JitMonitorEnabled())
}

func (DebuggerSuite) TestCreateBreakpointAtNullAddress(t *testing.T) {
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	err = db.CreateBreakpointAt(0, "")
	expect.True(t, errors.Is(err, ErrInvalidAddress))
}

func (DebuggerSuite) TestBreakpointPatchesMemory(t *testing.T) {
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	pc, err := db.GetPc()
	expect.Nil(t, err)

	original := make([]byte, 1)
	expect.Nil(t, db.ReadBytes(pc, original))

	expect.Nil(t, db.CreateBreakpointAt(pc, "entry"))

	patched := make([]byte, 1)
	expect.Nil(t, db.ReadBytes(pc, patched))
	expect.Equal(t, byte(0xcc), patched[0])

	// Creating a second breakpoint at the same address is a no-op.
	expect.Nil(t, db.CreateBreakpointAt(pc, "entry"))

	sites := db.StopSites().List()
	expect.Equal(t, 1, len(sites))
	expect.Equal(t, pc, sites[0].Address)
	expect.NotNil(t, db.StopSites().GetEnabledAt(pc))

	// Disassembly sees the original byte, not the patch.
	restored := make([]byte, 8)
	expect.Nil(t, db.ReadBytes(pc, restored))
	db.StopSites().ReplaceStopSiteBytes(pc, restored)
	expect.Equal(t, original[0], restored[0])

	expect.Nil(t, db.StopSites().Remove(pc))
	expect.Nil(t, db.ReadBytes(pc, patched))
	expect.Equal(t, original[0], patched[0])
}

func (DebuggerSuite) TestJitBreakWithEmptyRegistry(t *testing.T) {
	db, err := StartAndAttachTo("sleep", "60")
	expect.Nil(t, err)
	defer db.Close()

	_, err = db.CreateBreakpointOnJitFunction("anything")
	expect.True(t, errors.Is(err, ErrFunctionNotFound))
}
