// Package host implements the syscall dispatcher: the boundary
// between the guest's ECALL and the host operating system. It reads
// a7/a0..a2 off the CPU's register file, performs the host-side
// action, writes a return value into a0, and leaves advancing pc to
// its caller.
package host

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"rv32emu/pkg/cpu"
	"rv32emu/pkg/memory"
)

// Syscall numbers, RISC-V SysV ABI.
const (
	sysClose = 57
	sysWrite = 64
	sysFstat = 80
	sysExit  = 93
	sysBrk   = 214
)

// failureSentinel is returned in a0 for a write() to an unsupported
// fd. The spec permits either a 0-on-success/sentinel-on-failure
// scheme or a POSIX-faithful byte count; see the write() doc comment
// for the choice this package makes.
const failureSentinel = 0xFFFFFFFF

// ErrExit is returned by Dispatch when the guest calls exit(93). Code
// holds the guest-supplied exit status.
type ErrExit struct {
	Code uint32
}

func (e *ErrExit) Error() string {
	return fmt.Sprintf("guest exited with code %d", e.Code)
}

// ErrUnknownSyscall is returned for any syscall number this emulator
// does not implement; the spec treats this as fatal.
type ErrUnknownSyscall struct {
	Number uint32
}

func (e *ErrUnknownSyscall) Error() string {
	return fmt.Sprintf("unimplemented syscall %d", e.Number)
}

// Host carries the I/O streams syscalls write to, so tests can
// substitute buffers for the real stdout/stderr.
type Host struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Dispatch services the ECALL currently pending on c: it reads a7 to
// select the syscall, performs it, and writes the result to a0. It
// returns ErrExit when the guest has asked to terminate, and
// ErrUnknownSyscall for anything outside the implemented set; both are
// fatal to the caller's run loop. Any other non-nil error indicates a
// bad guest memory reference made during argument marshaling.
func (h *Host) Dispatch(c *cpu.CPU) error {
	number := c.ReadReg(17) // a7
	a0 := c.ReadReg(10)
	a1 := c.ReadReg(11)
	a2 := c.ReadReg(12)

	switch number {
	case sysClose:
		c.WriteReg(10, 0)

	case sysWrite:
		n, err := h.write(c, a0, a1, a2)
		if err != nil {
			return err
		}
		c.WriteReg(10, n)

	case sysFstat:
		if err := c.Mem.Write(a0, memory.Write, make([]byte, 128)); err != nil {
			return fmt.Errorf("host: fstat: %w", err)
		}
		c.WriteReg(10, 0)

	case sysExit:
		return &ErrExit{Code: a0}

	case sysBrk:
		c.WriteReg(10, h.brk(c, a0))

	default:
		log.Error("unimplemented syscall", "number", number)
		return &ErrUnknownSyscall{Number: number}
	}
	return nil
}

// write implements write(fd, buf, count). For fd 1/2 it copies count
// bytes out of guest memory (requiring R permission) and emits them to
// the matching host stream, returning the POSIX byte count written —
// a deliberate deviation from one draft of the original spec, which
// returned 0 on success; see the design note this package's doc
// records in the repository's design ledger. Any other fd returns the
// sentinel failure value.
func (h *Host) write(c *cpu.CPU, fd, buf, count uint32) (uint32, error) {
	var w io.Writer
	switch fd {
	case 1:
		w = h.Stdout
	case 2:
		w = h.Stderr
	default:
		return failureSentinel, nil
	}

	data := make([]byte, count)
	if err := c.Mem.Read(buf, memory.Read, data); err != nil {
		return 0, fmt.Errorf("host: write: %w", err)
	}
	n, err := w.Write(data)
	if err != nil {
		return 0, fmt.Errorf("host: write: %w", err)
	}
	return uint32(n), nil
}

// brk implements brk(new_brk). newBrk == 0 queries the current break;
// a request above HeapEnd is rejected by leaving Brk unchanged (the
// guest must check whether the return value matches its request).
func (h *Host) brk(c *cpu.CPU, newBrk uint32) uint32 {
	if newBrk == 0 {
		return c.Brk
	}
	if newBrk > c.HeapEnd {
		return c.Brk
	}
	c.Brk = newBrk
	return c.Brk
}
