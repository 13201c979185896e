// Command rv32emu loads a static RV32I SysV ELF executable and runs
// it to completion, servicing the small syscall set pkg/host
// implements.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"rv32emu/pkg/cpu"
	"rv32emu/pkg/host"
	"rv32emu/pkg/loader"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Crit("usage: rv32emu <path-to-elf>")
	}
	path := flag.Arg(0)

	c, err := loader.Load(path)
	if err != nil {
		log.Crit("failed to load executable", "path", path, "err", err)
	}

	h := &host.Host{Stdout: os.Stdout, Stderr: os.Stderr}

	code, err := run(c, h)
	if err != nil {
		log.Crit("guest execution failed", "err", err)
	}
	os.Exit(int(code))
}

// run drives the fetch-decode-execute loop, dispatching ECALL to h and
// treating EBREAK, InvalidInstruction, and InvalidMemoryAccess as fatal
// exits. It returns the guest's exit(2) status on a clean exit. The
// instruction/syscall/fault counts in the exit summaries below are
// read back from pkg/cpu's metrics.DefaultRegistry counters, not kept
// as separate local tallies.
func run(c *cpu.CPU, h *host.Host) (uint32, error) {
	for {
		exit := c.Step()
		switch exit.Reason {
		case cpu.Running:
			continue

		case cpu.Syscall:
			if err := h.Dispatch(c); err != nil {
				var done *host.ErrExit
				if errors.As(err, &done) {
					instructions, syscalls, faults := cpu.Counters()
					log.Info("guest exited", "code", done.Code,
						"instructions", instructions, "syscalls", syscalls, "faults", faults)
					return done.Code, nil
				}
				return 0, err
			}
			c.PC += 4

		case cpu.Break:
			instructions, _, _ := cpu.Counters()
			return 0, fmt.Errorf("hit ebreak at pc=0x%08x (instructions=%d)", c.PC, instructions)

		case cpu.InvalidInstruction:
			return 0, fmt.Errorf("invalid instruction 0x%08x at pc=0x%08x", exit.Word, c.PC)

		case cpu.InvalidMemoryAccess:
			return 0, fmt.Errorf("invalid memory access at 0x%08x (pc=0x%08x): %w", exit.Addr, c.PC, exit.Err)

		default:
			return 0, fmt.Errorf("unexpected exit reason %v", exit.Reason)
		}
	}
}
