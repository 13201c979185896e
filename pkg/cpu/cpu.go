// Package cpu implements the RV32I fetch-decode-execute loop: a
// register file, a program counter, and a Step function that executes
// exactly one instruction against a pkg/memory.Memory and returns a
// tagged Exit describing why control returned to the caller.
//
// Three behaviors here deliberately differ from an earlier draft of
// this emulator that circulated with known bugs: BGEU advances pc by
// its branch immediate exactly once, STORE computes its effective
// address with wrapping addition like every other address computation,
// and SUB actually subtracts rather than adding.
package cpu

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"rv32emu/pkg/disasm"
	"rv32emu/pkg/isa"
	"rv32emu/pkg/memory"
)

var (
	instructionsRetired = metrics.GetOrRegisterCounter("cpu/instructions_retired", nil)
	syscallsDispatched  = metrics.GetOrRegisterCounter("cpu/syscalls_dispatched", nil)
	memoryFaults        = metrics.GetOrRegisterCounter("cpu/memory_faults", nil)
)

// Counters returns the running totals of the package's three metrics,
// registered in metrics.DefaultRegistry: instructions retired,
// syscalls dispatched, and memory faults, in that order.
func Counters() (instructions, syscalls, faults int64) {
	return instructionsRetired.Count(), syscallsDispatched.Count(), memoryFaults.Count()
}

// Perms aliases the memory package's permission bits for convenience
// at call sites that only deal with the CPU.
const (
	Read  = memory.Read
	Write = memory.Write
	Exec  = memory.Exec
)

// ExitReason classifies why Step returned control to the caller.
type ExitReason int

const (
	// Running means the instruction executed normally; the caller
	// should call Step again. Step returns it after every instruction
	// that does not stop execution; Run never returns it.
	Running ExitReason = iota
	// Syscall means an ECALL was executed; pc now points at the ECALL
	// instruction itself, and the caller is expected to have the
	// syscall serviced (pkg/host) and then advance pc by 4.
	Syscall
	// Break means an EBREAK was executed.
	Break
	// InvalidInstruction means the opcode/funct combination at pc does
	// not decode to any RV32I instruction.
	InvalidInstruction
	// InvalidMemoryAccess means a load or store failed its bounds or
	// permission check.
	InvalidMemoryAccess
)

func (r ExitReason) String() string {
	switch r {
	case Syscall:
		return "syscall"
	case Break:
		return "break"
	case InvalidInstruction:
		return "invalid instruction"
	case InvalidMemoryAccess:
		return "invalid memory access"
	default:
		return "running"
	}
}

// Exit describes why Step stopped executing instructions.
type Exit struct {
	Reason ExitReason
	Word   uint32 // raw instruction word, set for InvalidInstruction
	Addr   uint32 // faulting address, set for InvalidMemoryAccess
	Err    error  // underlying memory error, set for InvalidMemoryAccess
}

func (e Exit) Error() string {
	switch e.Reason {
	case InvalidInstruction:
		return fmt.Sprintf("invalid instruction 0x%08x", e.Word)
	case InvalidMemoryAccess:
		return fmt.Sprintf("invalid memory access at 0x%08x: %v", e.Addr, e.Err)
	default:
		return e.Reason.String()
	}
}

// CPU is a single RV32I hart: 31 general-purpose registers (x0 is
// hard-wired to zero and never stored), a program counter, and the
// memory it executes against.
type CPU struct {
	PC   uint32
	regs [31]uint32
	Mem  *memory.Memory

	// Brk and HeapEnd track the guest's program break: Brk is the
	// current end of the data segment as adjusted by the brk(2)
	// syscall, HeapEnd is the upper bound of the heap region the
	// loader carved out. pkg/host enforces Brk <= HeapEnd.
	Brk     uint32
	HeapEnd uint32

	// Trace, when non-nil, receives one TraceLine per retired
	// instruction. Wiring it costs a function call per instruction, so
	// callers leave it nil outside of debugging sessions.
	Trace func(line string)
}

// New returns a CPU with pc set to entry and every general-purpose
// register zeroed, bound to mem.
func New(mem *memory.Memory, entry uint32) *CPU {
	return &CPU{PC: entry, Mem: mem}
}

// ReadReg returns the value of register r; x0 always reads as zero.
func (c *CPU) ReadReg(r isa.Reg) uint32 {
	if r == 0 {
		return 0
	}
	return c.regs[r-1]
}

// WriteReg sets register r to val; writes to x0 are silently dropped.
func (c *CPU) WriteReg(r isa.Reg, val uint32) {
	if r != 0 {
		c.regs[r-1] = val
	}
}

// TraceLine renders the current pc, its disassembly, and the full
// register file as a single human-readable line, in the style of a hex
// register dump.
func (c *CPU) TraceLine() string {
	word, err := c.Mem.ReadU32(c.PC, 0)
	mnemonic := "?"
	if err == nil {
		mnemonic = disasm.Disassemble(word)
	}
	s := fmt.Sprintf("pc %#010x  %-24s", c.PC, mnemonic)
	for i := isa.Reg(1); i <= 31; i++ {
		s += fmt.Sprintf(" %s %#010x", i.ABIName(), c.ReadReg(i))
	}
	return s
}

// Run repeatedly calls Step until it returns a non-Running exit.
func (c *CPU) Run() Exit {
	for {
		exit := c.Step()
		if exit.Reason != Running {
			return exit
		}
	}
}

// Step fetches, decodes, and executes exactly one instruction. On
// success it advances pc and returns Exit{Reason: Running}, except
// that control-flow instructions set pc themselves. ECALL and EBREAK
// leave pc pointing at the instruction itself; the caller (the
// top-level run loop, not pkg/host) is responsible for advancing past
// it once the syscall is serviced.
func (c *CPU) Step() Exit {
	word, err := c.Mem.ReadU32(c.PC, memory.Exec)
	if err != nil {
		return Exit{Reason: InvalidMemoryAccess, Addr: c.PC, Err: err}
	}

	next := c.PC + 4
	exit := c.execute(word, &next)

	if c.Trace != nil {
		c.Trace(c.TraceLine())
	}
	instructionsRetired.Inc(1)
	if exit.Reason == Syscall {
		syscallsDispatched.Inc(1)
	}

	if exit.Reason != Running {
		return exit
	}
	c.PC = next
	return Exit{Reason: Running}
}

func (c *CPU) execute(word uint32, next *uint32) Exit {
	pc := c.PC

	switch isa.Opcode(word) {
	case 0b0110111: // LUI
		t := isa.ParseU(word)
		c.WriteReg(t.Rd, t.Imm)

	case 0b0010111: // AUIPC
		t := isa.ParseU(word)
		c.WriteReg(t.Rd, pc+t.Imm)

	case 0b1101111: // JAL
		t := isa.ParseJ(word)
		c.WriteReg(t.Rd, pc+4)
		*next = pc + t.Imm

	case 0b1100111: // JALR
		t := isa.ParseI(word)
		if t.Funct3 != 0 {
			return Exit{Reason: InvalidInstruction, Word: word}
		}
		target := c.ReadReg(t.Rs1) + t.Imm
		c.WriteReg(t.Rd, pc+4)
		*next = target

	case 0b1100011: // BRANCH
		return c.executeBranch(word, pc, next)

	case 0b0000011: // LOAD
		return c.executeLoad(word)

	case 0b0100011: // STORE
		return c.executeStore(word)

	case 0b0010011: // OP-IMM
		return c.executeOpImm(word)

	case 0b0110011: // OP
		return c.executeOp(word)

	case 0b0001111: // MISC-MEM (FENCE)
		t := isa.ParseI(word)
		if t.Funct3 != 0 {
			return Exit{Reason: InvalidInstruction, Word: word}
		}

	case 0b1110011: // SYSTEM
		t := isa.ParseI(word)
		if t.Rs1 != 0 || t.Rd != 0 || t.Funct3 != 0 {
			return Exit{Reason: InvalidInstruction, Word: word}
		}
		switch t.Imm {
		case 0:
			return Exit{Reason: Syscall}
		case 1:
			return Exit{Reason: Break}
		default:
			return Exit{Reason: InvalidInstruction, Word: word}
		}

	default:
		return Exit{Reason: InvalidInstruction, Word: word}
	}

	return Exit{Reason: Running}
}

func (c *CPU) executeBranch(word uint32, pc uint32, next *uint32) Exit {
	t := isa.ParseB(word)
	rs1, rs2 := c.ReadReg(t.Rs1), c.ReadReg(t.Rs2)
	var taken bool
	switch t.Funct3 {
	case 0b000: // BEQ
		taken = rs1 == rs2
	case 0b001: // BNE
		taken = rs1 != rs2
	case 0b100: // BLT
		taken = int32(rs1) < int32(rs2)
	case 0b101: // BGE
		taken = int32(rs1) >= int32(rs2)
	case 0b110: // BLTU
		taken = rs1 < rs2
	case 0b111: // BGEU
		taken = rs1 >= rs2
	default:
		return Exit{Reason: InvalidInstruction, Word: word}
	}
	if taken {
		*next = pc + t.Imm
	}
	return Exit{Reason: Running}
}

func (c *CPU) executeLoad(word uint32) Exit {
	t := isa.ParseI(word)
	addr := c.ReadReg(t.Rs1) + t.Imm

	switch t.Funct3 {
	case 0b000: // LB
		v, err := c.Mem.ReadI8(addr, memory.Read)
		if err != nil {
			return memErr(addr, err)
		}
		c.WriteReg(t.Rd, uint32(int32(v)))
	case 0b001: // LH
		v, err := c.Mem.ReadI16(addr, memory.Read)
		if err != nil {
			return memErr(addr, err)
		}
		c.WriteReg(t.Rd, uint32(int32(v)))
	case 0b010: // LW
		v, err := c.Mem.ReadU32(addr, memory.Read)
		if err != nil {
			return memErr(addr, err)
		}
		c.WriteReg(t.Rd, v)
	case 0b100: // LBU
		v, err := c.Mem.ReadU8(addr, memory.Read)
		if err != nil {
			return memErr(addr, err)
		}
		c.WriteReg(t.Rd, uint32(v))
	case 0b101: // LHU
		v, err := c.Mem.ReadU16(addr, memory.Read)
		if err != nil {
			return memErr(addr, err)
		}
		c.WriteReg(t.Rd, uint32(v))
	default:
		return Exit{Reason: InvalidInstruction, Word: word}
	}
	return Exit{Reason: Running}
}

func (c *CPU) executeStore(word uint32) Exit {
	t := isa.ParseS(word)
	addr := c.ReadReg(t.Rs1) + t.Imm

	switch t.Funct3 {
	case 0b000: // SB
		if err := c.Mem.WriteU8(addr, memory.Write, uint8(c.ReadReg(t.Rs2))); err != nil {
			return memErr(addr, err)
		}
	case 0b001: // SH
		if err := c.Mem.WriteU16(addr, memory.Write, uint16(c.ReadReg(t.Rs2))); err != nil {
			return memErr(addr, err)
		}
	case 0b010: // SW
		if err := c.Mem.WriteU32(addr, memory.Write, c.ReadReg(t.Rs2)); err != nil {
			return memErr(addr, err)
		}
	default:
		return Exit{Reason: InvalidInstruction, Word: word}
	}
	return Exit{Reason: Running}
}

func (c *CPU) executeOpImm(word uint32) Exit {
	t := isa.ParseI(word)
	shamt := t.Imm & 0x1f
	arithmetic := (t.Imm & 0xFFF) >> 5

	switch t.Funct3 {
	case 0b000: // ADDI
		c.WriteReg(t.Rd, c.ReadReg(t.Rs1)+t.Imm)
	case 0b010: // SLTI
		c.WriteReg(t.Rd, boolToWord(int32(c.ReadReg(t.Rs1)) < int32(t.Imm)))
	case 0b011: // SLTIU
		c.WriteReg(t.Rd, boolToWord(c.ReadReg(t.Rs1) < t.Imm))
	case 0b100: // XORI
		c.WriteReg(t.Rd, c.ReadReg(t.Rs1)^t.Imm)
	case 0b110: // ORI
		c.WriteReg(t.Rd, c.ReadReg(t.Rs1)|t.Imm)
	case 0b111: // ANDI
		c.WriteReg(t.Rd, c.ReadReg(t.Rs1)&t.Imm)
	case 0b001: // SLLI
		if arithmetic != 0 {
			return Exit{Reason: InvalidInstruction, Word: word}
		}
		c.WriteReg(t.Rd, c.ReadReg(t.Rs1)<<shamt)
	case 0b101: // SRLI / SRAI
		switch arithmetic {
		case 0b0:
			c.WriteReg(t.Rd, c.ReadReg(t.Rs1)>>shamt)
		case 0b0100000:
			c.WriteReg(t.Rd, uint32(int32(c.ReadReg(t.Rs1))>>shamt))
		default:
			return Exit{Reason: InvalidInstruction, Word: word}
		}
	default:
		return Exit{Reason: InvalidInstruction, Word: word}
	}
	return Exit{Reason: Running}
}

func (c *CPU) executeOp(word uint32) Exit {
	t := isa.ParseR(word)
	rs1, rs2 := c.ReadReg(t.Rs1), c.ReadReg(t.Rs2)
	shamt := rs2 & 0x1f

	switch {
	case t.Funct3 == 0b000 && t.Funct7 == 0b0000000: // ADD
		c.WriteReg(t.Rd, rs1+rs2)
	case t.Funct3 == 0b000 && t.Funct7 == 0b0100000: // SUB
		c.WriteReg(t.Rd, rs1-rs2)
	case t.Funct3 == 0b001 && t.Funct7 == 0b0000000: // SLL
		c.WriteReg(t.Rd, rs1<<shamt)
	case t.Funct3 == 0b010 && t.Funct7 == 0b0000000: // SLT
		c.WriteReg(t.Rd, boolToWord(int32(rs1) < int32(rs2)))
	case t.Funct3 == 0b011 && t.Funct7 == 0b0000000: // SLTU
		c.WriteReg(t.Rd, boolToWord(rs1 < rs2))
	case t.Funct3 == 0b100 && t.Funct7 == 0b0000000: // XOR
		c.WriteReg(t.Rd, rs1^rs2)
	case t.Funct3 == 0b101 && t.Funct7 == 0b0000000: // SRL
		c.WriteReg(t.Rd, rs1>>shamt)
	case t.Funct3 == 0b101 && t.Funct7 == 0b0100000: // SRA
		c.WriteReg(t.Rd, uint32(int32(rs1)>>shamt))
	case t.Funct3 == 0b110 && t.Funct7 == 0b0000000: // OR
		c.WriteReg(t.Rd, rs1|rs2)
	case t.Funct3 == 0b111 && t.Funct7 == 0b0000000: // AND
		c.WriteReg(t.Rd, rs1&rs2)
	default:
		return Exit{Reason: InvalidInstruction, Word: word}
	}
	return Exit{Reason: Running}
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func memErr(addr uint32, err error) Exit {
	log.Debug("memory access fault", "addr", fmt.Sprintf("0x%x", addr), "err", err)
	memoryFaults.Inc(1)
	return Exit{Reason: InvalidMemoryAccess, Addr: addr, Err: err}
}
