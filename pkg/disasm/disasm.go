// Package disasm renders a single RV32I instruction word as the
// textual mnemonic form used by the emulator's trace output. It only
// ever needs to be readable by a human watching a trace; it is never
// parsed back.
package disasm

import (
	"fmt"

	"rv32emu/pkg/isa"
)

// opcode values, one per RV32I major instruction group (RISC-V spec,
// table of base opcode map).
const (
	opLUI    = 0b0110111
	opAUIPC  = 0b0010111
	opJAL    = 0b1101111
	opJALR   = 0b1100111
	opBRANCH = 0b1100011
	opLOAD   = 0b0000011
	opSTORE  = 0b0100011
	opIMM    = 0b0010011
	opOP     = 0b0110011
	opMISC   = 0b0001111
	opSYSTEM = 0b1110011
)

// Disassemble returns the mnemonic text for the instruction word. It
// never errors: an unrecognized opcode/funct combination renders as
// "unknown" followed by its raw encoding, since trace output must
// never abort the program that produced it.
func Disassemble(word uint32) string {
	switch isa.Opcode(word) {
	case opLUI:
		t := isa.ParseU(word)
		return fmt.Sprintf("lui %s, 0x%x", t.Rd.ABIName(), t.Imm)
	case opAUIPC:
		t := isa.ParseU(word)
		return fmt.Sprintf("auipc %s, 0x%x", t.Rd.ABIName(), t.Imm)
	case opJAL:
		t := isa.ParseJ(word)
		return fmt.Sprintf("jal %s, %d", t.Rd.ABIName(), int32(t.Imm))
	case opJALR:
		t := isa.ParseI(word)
		return fmt.Sprintf("jalr %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), int32(t.Imm))
	case opBRANCH:
		return disassembleBranch(word)
	case opLOAD:
		return disassembleLoad(word)
	case opSTORE:
		return disassembleStore(word)
	case opIMM:
		return disassembleOpImm(word)
	case opOP:
		return disassembleOp(word)
	case opMISC:
		if t := isa.ParseI(word); t.Funct3 != 0 {
			return fmt.Sprintf("unknown misc-mem funct3=0x%x 0x%08x", t.Funct3, word)
		}
		return "fence"
	case opSYSTEM:
		return disassembleSystem(word)
	default:
		return fmt.Sprintf("unknown 0x%08x", word)
	}
}

func disassembleBranch(word uint32) string {
	t := isa.ParseB(word)
	mnemonic, ok := map[uint32]string{
		0b000: "beq",
		0b001: "bne",
		0b100: "blt",
		0b101: "bge",
		0b110: "bltu",
		0b111: "bgeu",
	}[t.Funct3]
	if !ok {
		return fmt.Sprintf("unknown branch funct3=0x%x 0x%08x", t.Funct3, word)
	}
	return fmt.Sprintf("%s %s, %s, %d", mnemonic, t.Rs1.ABIName(), t.Rs2.ABIName(), int32(t.Imm))
}

func disassembleLoad(word uint32) string {
	t := isa.ParseI(word)
	mnemonic, ok := map[uint32]string{
		0b000: "lb",
		0b001: "lh",
		0b010: "lw",
		0b100: "lbu",
		0b101: "lhu",
	}[t.Funct3]
	if !ok {
		return fmt.Sprintf("unknown load funct3=0x%x 0x%08x", t.Funct3, word)
	}
	return fmt.Sprintf("%s %s, %d(%s)", mnemonic, t.Rd.ABIName(), int32(t.Imm), t.Rs1.ABIName())
}

func disassembleStore(word uint32) string {
	t := isa.ParseS(word)
	mnemonic, ok := map[uint32]string{
		0b000: "sb",
		0b001: "sh",
		0b010: "sw",
	}[t.Funct3]
	if !ok {
		return fmt.Sprintf("unknown store funct3=0x%x 0x%08x", t.Funct3, word)
	}
	return fmt.Sprintf("%s %s, %d(%s)", mnemonic, t.Rs2.ABIName(), int32(t.Imm), t.Rs1.ABIName())
}

func disassembleOpImm(word uint32) string {
	t := isa.ParseI(word)
	shamt := t.Imm & 0x1f
	arithmetic := (t.Imm & 0xFFF) >> 5

	switch t.Funct3 {
	case 0b000:
		return fmt.Sprintf("addi %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), int32(t.Imm))
	case 0b010:
		return fmt.Sprintf("slti %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), int32(t.Imm))
	case 0b011:
		return fmt.Sprintf("sltiu %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), t.Imm)
	case 0b100:
		return fmt.Sprintf("xori %s, %s, 0x%x", t.Rd.ABIName(), t.Rs1.ABIName(), t.Imm)
	case 0b110:
		return fmt.Sprintf("ori %s, %s, 0x%x", t.Rd.ABIName(), t.Rs1.ABIName(), t.Imm)
	case 0b111:
		return fmt.Sprintf("andi %s, %s, 0x%x", t.Rd.ABIName(), t.Rs1.ABIName(), t.Imm)
	case 0b001:
		return fmt.Sprintf("slli %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), shamt)
	case 0b101:
		switch arithmetic {
		case 0b0:
			return fmt.Sprintf("srli %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), shamt)
		case 0b0100000:
			return fmt.Sprintf("srai %s, %s, %d", t.Rd.ABIName(), t.Rs1.ABIName(), shamt)
		default:
			return fmt.Sprintf("unknown srli/srai arithmetic=0x%x 0x%08x", arithmetic, word)
		}
	default:
		return fmt.Sprintf("unknown op-imm funct3=0x%x 0x%08x", t.Funct3, word)
	}
}

func disassembleOp(word uint32) string {
	t := isa.ParseR(word)
	type key struct{ funct3, funct7 uint32 }
	mnemonic, ok := map[key]string{
		{0b000, 0b0000000}: "add",
		{0b000, 0b0100000}: "sub",
		{0b001, 0b0000000}: "sll",
		{0b010, 0b0000000}: "slt",
		{0b011, 0b0000000}: "sltu",
		{0b100, 0b0000000}: "xor",
		{0b101, 0b0000000}: "srl",
		{0b101, 0b0100000}: "sra",
		{0b110, 0b0000000}: "or",
		{0b111, 0b0000000}: "and",
	}[key{t.Funct3, t.Funct7}]
	if !ok {
		return fmt.Sprintf("unknown op funct3=0x%x funct7=0x%x 0x%08x", t.Funct3, t.Funct7, word)
	}
	return fmt.Sprintf("%s %s, %s, %s", mnemonic, t.Rd.ABIName(), t.Rs1.ABIName(), t.Rs2.ABIName())
}

func disassembleSystem(word uint32) string {
	t := isa.ParseI(word)
	if t.Funct3 != 0 {
		return fmt.Sprintf("unknown system funct3=0x%x 0x%08x", t.Funct3, word)
	}
	switch t.Imm {
	case 0b0:
		return "ecall"
	case 0b1:
		return "ebreak"
	default:
		return fmt.Sprintf("unknown system imm=0x%x 0x%08x", t.Imm, word)
	}
}
