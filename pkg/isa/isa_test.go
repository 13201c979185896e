package isa

import "testing"

func TestOpcode(t *testing.T) {
	if got := Opcode(0xFFFFFFFF); got != 0x7f {
		t.Fatalf("got 0x%x, want 0x7f", got)
	}
	if got := Opcode(0x00000013); got != 0x13 {
		t.Fatalf("got 0x%x, want 0x13", got)
	}
}

func TestRegABIName(t *testing.T) {
	cases := map[Reg]string{
		0:  "zero",
		1:  "ra",
		2:  "sp",
		10: "a0",
		17: "a7",
		31: "t6",
	}
	for reg, want := range cases {
		if got := reg.ABIName(); got != want {
			t.Fatalf("reg %d: got %q, want %q", reg, got, want)
		}
	}
}

func TestParseU(t *testing.T) {
	// lui x1, 0x12345 -> imm in top 20 bits, rd = x1, opcode 0x37
	word := uint32(0x12345000) | (1 << 7) | 0x37
	u := ParseU(word)
	if u.Imm != 0x12345000 {
		t.Fatalf("imm = 0x%x, want 0x12345000", u.Imm)
	}
	if u.Rd != 1 {
		t.Fatalf("rd = %d, want 1", u.Rd)
	}
}

func TestParseJPositive(t *testing.T) {
	// jal x1, 4: imm=4 -> imm10_1 bit1 set (value 2 in the 10:1 field)
	word := uint32(0)
	word |= 1 << 7 // rd = x1
	word |= 2 << 21 // imm[10:1] = 0b0000000010 -> bit 2 of imm set -> imm=4
	j := ParseJ(word | 0x6f)
	// imm[10:1] field holds bits 10..1 of the immediate; setting field=2
	// means imm bit 2 is set, i.e. immediate value 4.
	if j.Imm != 4 {
		t.Fatalf("imm = %d, want 4", int32(j.Imm))
	}
	if j.Rd != 1 {
		t.Fatalf("rd = %d, want 1", j.Rd)
	}
}

func TestParseJNegative(t *testing.T) {
	// Set imm[20] (word bit 31) to force sign extension to -2.
	word := uint32(1) << 31
	word |= 0x3ff << 21 // imm[10:1] all ones -> contributes 0x7fe
	word |= 0xff << 12  // imm[19:12] all ones
	word |= 1 << 20     // imm[11]
	j := ParseJ(word)
	if int32(j.Imm) != -2 {
		t.Fatalf("imm = %d, want -2", int32(j.Imm))
	}
}

func TestParseIPositive(t *testing.T) {
	// addi x2, x1, 5
	word := uint32(5)<<20 | uint32(1)<<15 | uint32(0)<<12 | uint32(2)<<7 | 0x13
	i := ParseI(word)
	if i.Imm != 5 {
		t.Fatalf("imm = %d, want 5", int32(i.Imm))
	}
	if i.Rs1 != 1 || i.Rd != 2 || i.Funct3 != 0 {
		t.Fatalf("unexpected fields: %+v", i)
	}
}

func TestParseINegative(t *testing.T) {
	// addi x1, x0, -1 -> imm field all ones
	word := uint32(0xFFF)<<20 | uint32(0)<<15 | uint32(0)<<12 | uint32(1)<<7 | 0x13
	i := ParseI(word)
	if int32(i.Imm) != -1 {
		t.Fatalf("imm = %d, want -1", int32(i.Imm))
	}
}

func TestParseBPositive(t *testing.T) {
	// beq x1, x2, 8: imm=8 -> imm[4:1] field value 4 (bit2 of field set)
	word := uint32(0)
	word |= 1 << 15 // rs1
	word |= 2 << 20 // rs2
	word |= 4 << 8  // imm[4:1] = 0b0100 -> bit 2 -> immediate bit 3 -> value 8
	word |= 0x63
	b := ParseB(word)
	if b.Imm != 8 {
		t.Fatalf("imm = %d, want 8", int32(b.Imm))
	}
	if b.Rs1 != 1 || b.Rs2 != 2 {
		t.Fatalf("unexpected fields: %+v", b)
	}
}

func TestParseBNegative(t *testing.T) {
	word := uint32(1) << 31 // imm[12] set -> sign bit
	word |= 0x63
	b := ParseB(word)
	if int32(b.Imm) >= 0 {
		t.Fatalf("imm = %d, want negative", int32(b.Imm))
	}
}

func TestParseS(t *testing.T) {
	// sw x2, 4(x1): imm=4 -> imm[4:0] field = 4
	word := uint32(0)
	word |= 1 << 15  // rs1
	word |= 2 << 20  // rs2 (value being stored)
	word |= 4 << 7   // imm[4:0]
	word |= 2 << 12  // funct3 = 2 (SW)
	word |= 0x23
	s := ParseS(word)
	if s.Imm != 4 {
		t.Fatalf("imm = %d, want 4", int32(s.Imm))
	}
	if s.Rs1 != 1 || s.Rs2 != 2 || s.Funct3 != 2 {
		t.Fatalf("unexpected fields: %+v", s)
	}
}

func TestParseR(t *testing.T) {
	// add x3, x1, x2
	word := uint32(0)
	word |= 1 << 15
	word |= 2 << 20
	word |= 3 << 7
	word |= 0x33
	r := ParseR(word)
	if r.Rs1 != 1 || r.Rs2 != 2 || r.Rd != 3 || r.Funct3 != 0 || r.Funct7 != 0 {
		t.Fatalf("unexpected fields: %+v", r)
	}
}
