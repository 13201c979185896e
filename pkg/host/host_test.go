package host

import (
	"bytes"
	"errors"
	"testing"

	"rv32emu/pkg/cpu"
	"rv32emu/pkg/memory"
)

func newTestCPU(t *testing.T) *cpu.CPU {
	t.Helper()
	mem := memory.New(1 << 16)
	if _, _, err := mem.Allocate(1<<16, memory.Read|memory.Write|memory.Exec); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return cpu.New(mem, 0)
}

func TestWriteToStdoutReturnsByteCount(t *testing.T) {
	c := newTestCPU(t)
	msg := "hello\n"
	if err := c.Mem.Write(0x100, memory.Write, []byte(msg)); err != nil {
		t.Fatalf("seed buffer: %v", err)
	}
	c.WriteReg(17, 64) // a7 = write
	c.WriteReg(10, 1)  // fd = stdout
	c.WriteReg(11, 0x100)
	c.WriteReg(12, uint32(len(msg)))

	var out bytes.Buffer
	h := &Host{Stdout: &out, Stderr: &bytes.Buffer{}}
	if err := h.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.String() != msg {
		t.Fatalf("stdout = %q, want %q", out.String(), msg)
	}
	if c.ReadReg(10) != uint32(len(msg)) {
		t.Fatalf("a0 = %d, want %d (byte count)", c.ReadReg(10), len(msg))
	}
}

func TestWriteToUnsupportedFdReturnsSentinel(t *testing.T) {
	c := newTestCPU(t)
	c.WriteReg(17, 64)
	c.WriteReg(10, 99) // unsupported fd
	c.WriteReg(11, 0)
	c.WriteReg(12, 0)

	h := &Host{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	if err := h.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if c.ReadReg(10) != failureSentinel {
		t.Fatalf("a0 = 0x%x, want sentinel 0x%x", c.ReadReg(10), uint32(failureSentinel))
	}
}

func TestExitReturnsErrExit(t *testing.T) {
	c := newTestCPU(t)
	c.WriteReg(17, 93)
	c.WriteReg(10, 7)

	h := &Host{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	err := h.Dispatch(c)
	var exit *ErrExit
	if !errors.As(err, &exit) {
		t.Fatalf("got %v, want *ErrExit", err)
	}
	if exit.Code != 7 {
		t.Fatalf("code = %d, want 7", exit.Code)
	}
}

func TestBrkQueryThenGrowThenRejectOOM(t *testing.T) {
	c := newTestCPU(t)
	c.Brk = 0x2000
	c.HeapEnd = 0x3000

	h := &Host{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	c.WriteReg(17, 214)
	c.WriteReg(10, 0) // query
	if err := h.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if c.ReadReg(10) != 0x2000 {
		t.Fatalf("brk query = 0x%x, want 0x2000", c.ReadReg(10))
	}

	c.WriteReg(10, 0x2800) // grow within bound
	if err := h.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if c.ReadReg(10) != 0x2800 || c.Brk != 0x2800 {
		t.Fatalf("brk grow = 0x%x (c.Brk=0x%x), want 0x2800", c.ReadReg(10), c.Brk)
	}

	c.WriteReg(10, 0x5000) // beyond heap_end
	if err := h.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if c.ReadReg(10) != 0x2800 || c.Brk != 0x2800 {
		t.Fatalf("brk OOM request changed brk: a0=0x%x brk=0x%x", c.ReadReg(10), c.Brk)
	}
}

func TestUnknownSyscallIsFatal(t *testing.T) {
	c := newTestCPU(t)
	c.WriteReg(17, 9999)

	h := &Host{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	err := h.Dispatch(c)
	var unknown *ErrUnknownSyscall
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want *ErrUnknownSyscall", err)
	}
}
