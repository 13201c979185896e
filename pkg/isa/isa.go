// Package isa decodes RV32I instruction words into their six typed
// encodings (U, J, I, B, S, R). Every function here is pure and total:
// there are no invalid bit patterns at the decoder layer, only at the
// execute layer once opcode/funct3/funct7 are matched against the
// instruction set.
package isa

// Reg is a 5-bit general-purpose register index, 0..31. x0 is
// hard-wired to read as zero; pkg/cpu enforces that, not this package.
type Reg uint8

var abiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// ABIName returns the conventional SysV calling-convention alias for
// the register (zero, ra, sp, gp, tp, t0..t6, s0..s11, a0..a7).
func (r Reg) ABIName() string {
	return abiNames[r&0x1f]
}

// Opcode returns the low 7 bits of the instruction word, which select
// the instruction's format and broad category.
func Opcode(word uint32) uint32 {
	return word & 0x7f
}

// UType is the U-format: a 20-bit upper immediate and a destination
// register. Used by LUI and AUIPC.
type UType struct {
	Imm uint32 // imm[31:12]<<12, not sign-extended further (already top bits)
	Rd  Reg
}

// ParseU extracts the U-type fields from an instruction word.
func ParseU(word uint32) UType {
	return UType{
		Imm: word & 0xFFFFF000,
		Rd:  Reg((word >> 7) & 0x1f),
	}
}

// JType is the J-format: a sign-extended 21-bit jump offset (low bit
// always zero) and a destination register. Used by JAL.
type JType struct {
	Imm uint32 // sign-extended
	Rd  Reg
}

// ParseJ extracts the J-type fields, reconstructing the scattered
// immediate: instr[31]->imm[20], instr[19:12]->imm[19:12],
// instr[20]->imm[11], instr[30:21]->imm[10:1], imm[0]=0.
func ParseJ(word uint32) JType {
	imm20 := (word >> 31) & 0x1
	imm19_12 := (word >> 12) & 0xff
	imm11 := (word >> 20) & 0x1
	imm10_1 := (word >> 21) & 0x3ff

	imm := (imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1)
	imm = signExtend(imm, 21)

	return JType{
		Imm: imm,
		Rd:  Reg((word >> 7) & 0x1f),
	}
}

// IType is the I-format: a sign-extended 12-bit immediate, a source
// register, a 3-bit function code, and a destination register. Used by
// JALR, loads, OP-IMM, FENCE, ECALL/EBREAK.
type IType struct {
	Imm    uint32 // sign-extended
	Rs1    Reg
	Funct3 uint32
	Rd     Reg
}

// ParseI extracts the I-type fields. The immediate is instr[31:20],
// sign-extended; an arithmetic right shift of the whole word by 20
// does exactly that.
func ParseI(word uint32) IType {
	imm := uint32(int32(word) >> 20)
	return IType{
		Imm:    imm,
		Rs1:    Reg((word >> 15) & 0x1f),
		Funct3: (word >> 12) & 0x7,
		Rd:     Reg((word >> 7) & 0x1f),
	}
}

// BType is the B-format: a sign-extended 13-bit branch offset (low bit
// always zero), two source registers, and a 3-bit function code.
type BType struct {
	Imm    uint32 // sign-extended
	Rs1    Reg
	Rs2    Reg
	Funct3 uint32
}

// ParseB extracts the B-type fields: instr[31]->imm[12],
// instr[7]->imm[11], instr[30:25]->imm[10:5], instr[11:8]->imm[4:1],
// imm[0]=0.
func ParseB(word uint32) BType {
	imm12 := (word >> 31) & 0x1
	imm11 := (word >> 7) & 0x1
	imm10_5 := (word >> 25) & 0x3f
	imm4_1 := (word >> 8) & 0xf

	imm := (imm12 << 12) | (imm11 << 11) | (imm10_5 << 5) | (imm4_1 << 1)
	imm = signExtend(imm, 13)

	return BType{
		Imm:    imm,
		Rs1:    Reg((word >> 15) & 0x1f),
		Rs2:    Reg((word >> 20) & 0x1f),
		Funct3: (word >> 12) & 0x7,
	}
}

// SType is the S-format: a sign-extended 12-bit store offset, two
// source registers, and a 3-bit function code.
type SType struct {
	Imm    uint32 // sign-extended
	Rs1    Reg
	Rs2    Reg
	Funct3 uint32
}

// ParseS extracts the S-type fields: instr[31:25]->imm[11:5],
// instr[11:7]->imm[4:0].
func ParseS(word uint32) SType {
	imm11_5 := (word >> 25) & 0x7f
	imm4_0 := (word >> 7) & 0x1f

	imm := (imm11_5 << 5) | imm4_0
	imm = signExtend(imm, 12)

	return SType{
		Imm:    imm,
		Rs1:    Reg((word >> 15) & 0x1f),
		Rs2:    Reg((word >> 20) & 0x1f),
		Funct3: (word >> 12) & 0x7,
	}
}

// RType is the R-format: two source registers, a destination register,
// and the funct3/funct7 discriminators. Used by OP.
type RType struct {
	Funct7 uint32
	Rs1    Reg
	Rs2    Reg
	Funct3 uint32
	Rd     Reg
}

// ParseR extracts the R-type fields; there is no immediate to
// reconstruct.
func ParseR(word uint32) RType {
	return RType{
		Funct7: (word >> 25) & 0x7f,
		Rs1:    Reg((word >> 15) & 0x1f),
		Rs2:    Reg((word >> 20) & 0x1f),
		Funct3: (word >> 12) & 0x7,
		Rd:     Reg((word >> 7) & 0x1f),
	}
}

// signExtend sign-extends the low bits-wide field in v (already shifted
// into position) to a full 32-bit two's-complement value.
func signExtend(v uint32, bits uint) uint32 {
	shift := 32 - bits
	return uint32(int32(v<<shift) >> shift)
}
