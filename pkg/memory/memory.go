// Package memory implements the emulator's byte-addressable guest
// address space: a flat byte buffer paired with a parallel permission
// byte per address, and a first-fit allocator (pkg/rangeset) that
// carves regions out of the free space.
//
// Permission bits mirror the original RiSC-V emulator's Perms enum
// (rv/src/emulator.rs): Read=0x01, Write=0x02, Exec=0x04,
// ReadAfterWrite=0x08. A byte tagged RAW is "allocated but never
// written" — reading it before any write traps, which catches guest
// programs that read uninitialized stack or heap memory.
package memory

import (
	"encoding/binary"
	"fmt"

	"rv32emu/pkg/rangeset"
)

// Permission bits, one per byte of guest memory.
const (
	Read  = 0x01
	Write = 0x02
	Exec  = 0x04
	RAW   = 0x08
)

// Error is returned by every Memory operation that can fail: an
// out-of-bounds access, a missing permission, or an allocator failure.
type Error struct {
	Kind       ErrorKind
	Start, End uint32 // affected byte range (End exclusive)
	Requested  uint8  // permission mask requested, if applicable
	Observed   uint8  // actual permission byte at Start, if applicable
}

// ErrorKind classifies a memory Error.
type ErrorKind int

const (
	// OutOfBounds means some byte in the range lies outside [0, N).
	OutOfBounds ErrorKind = iota
	// BadPermissions means a byte in the range lacks a required bit.
	BadPermissions
	// OutOfMemory means the first-fit allocator found no fitting region.
	OutOfMemory
)

func (e *Error) Error() string {
	switch e.Kind {
	case OutOfBounds:
		return fmt.Sprintf("memory: [0x%x,0x%x) out of bounds", e.Start, e.End)
	case BadPermissions:
		return fmt.Sprintf("memory: address 0x%x requires permission 0x%x, has 0x%x", e.Start, e.Requested, e.Observed)
	case OutOfMemory:
		return fmt.Sprintf("memory: no fit for %d bytes", e.End-e.Start)
	default:
		return "memory: error"
	}
}

// Memory is the guest's byte-addressable address space.
type Memory struct {
	bytes []byte
	perms []byte
	free  *rangeset.RangeSet
}

// New allocates a Memory of the given size, with every byte initially
// unowned (zero permissions, entirely in the free set).
func New(size uint32) *Memory {
	return &Memory{
		bytes: make([]byte, size),
		perms: make([]byte, size),
		free:  rangeset.New(0, size),
	}
}

// Size returns the total number of addressable bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.bytes))
}

// CheckBounds fails with OutOfBounds if any byte of [start, end) lies
// outside [0, N).
func (m *Memory) CheckBounds(start, end uint32) error {
	if end < start || end > m.Size() {
		return &Error{Kind: OutOfBounds, Start: start, End: end}
	}
	return nil
}

// CheckPermission requires (perms[addr] & required) != 0 for every byte
// in [start, end). On failure it reports the first offending byte.
func (m *Memory) CheckPermission(start, end uint32, required uint8) error {
	if required == 0 {
		return nil
	}
	for addr := start; addr < end; addr++ {
		if m.perms[addr]&required == 0 {
			return &Error{
				Kind:      BadPermissions,
				Start:     addr,
				End:       addr + 1,
				Requested: required,
				Observed:  m.perms[addr],
			}
		}
	}
	return nil
}

// Allocate carves size bytes out of the free set using first fit,
// stamps perms across the resulting range, and returns it.
func (m *Memory) Allocate(size uint32, perms uint8) (start, end uint32, err error) {
	start, end, err = m.free.RemoveFirstFit(size)
	if err != nil {
		return 0, 0, &Error{Kind: OutOfMemory, Start: 0, End: size}
	}
	m.SetPermissions(start, end, perms)
	return start, end, nil
}

// SetPermissions overwrites (no merging) the permission bytes across
// [start, end).
func (m *Memory) SetPermissions(start, end uint32, perms uint8) {
	for addr := start; addr < end; addr++ {
		m.perms[addr] = perms
	}
}

// Claim removes [start, end) from the free set without touching
// permissions. Used by the loader to mark ELF-segment address ranges
// as owned before stamping their own permissions over them.
func (m *Memory) Claim(start, end uint32) error {
	if err := m.free.Remove(start, end); err != nil {
		return &Error{Kind: OutOfBounds, Start: start, End: end}
	}
	return nil
}

// Read copies [start, start+len(dst)) into dst after bounds- and (if
// required != 0) permission-checking the range.
func (m *Memory) Read(start uint32, required uint8, dst []byte) error {
	end := start + uint32(len(dst))
	if err := m.CheckBounds(start, end); err != nil {
		return err
	}
	if err := m.CheckPermission(start, end, required); err != nil {
		return err
	}
	copy(dst, m.bytes[start:end])
	return nil
}

// WriteNoCheck copies data into memory starting at addr, bypassing
// bounds and permission checks and the RAW transition. Used only by the
// loader to seed ELF segment contents before permissions are stamped.
func (m *Memory) WriteNoCheck(addr uint32, data []byte) {
	copy(m.bytes[addr:], data)
}

// Write bounds-checks and (if required != 0) permission-checks
// [addr, addr+len(data)), clears the RAW bit (setting Read) on every
// byte that had it set, then copies data into place.
func (m *Memory) Write(addr uint32, required uint8, data []byte) error {
	end := addr + uint32(len(data))
	if err := m.CheckBounds(addr, end); err != nil {
		return err
	}
	if err := m.CheckPermission(addr, end, required); err != nil {
		return err
	}
	for a := addr; a < end; a++ {
		if m.perms[a]&RAW != 0 {
			m.perms[a] = (m.perms[a] &^ RAW) | Read
		}
	}
	copy(m.bytes[addr:end], data)
	return nil
}

// ReadU8 reads a single byte requiring permission mask required.
func (m *Memory) ReadU8(addr uint32, required uint8) (uint8, error) {
	var buf [1]byte
	if err := m.Read(addr, required, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadI8 reads a single byte, sign-extended to 32 bits via the return
// type's caller (LB semantics).
func (m *Memory) ReadI8(addr uint32, required uint8) (int8, error) {
	b, err := m.ReadU8(addr, required)
	return int8(b), err
}

// ReadU16 reads a little-endian 16-bit value.
func (m *Memory) ReadU16(addr uint32, required uint8) (uint16, error) {
	var buf [2]byte
	if err := m.Read(addr, required, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadI16 reads a little-endian 16-bit value, sign-extended (LH
// semantics).
func (m *Memory) ReadI16(addr uint32, required uint8) (int16, error) {
	u, err := m.ReadU16(addr, required)
	return int16(u), err
}

// ReadU32 reads a little-endian 32-bit value.
func (m *Memory) ReadU32(addr uint32, required uint8) (uint32, error) {
	var buf [4]byte
	if err := m.Read(addr, required, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteU8 writes a single byte.
func (m *Memory) WriteU8(addr uint32, required uint8, v uint8) error {
	return m.Write(addr, required, []byte{v})
}

// WriteU16 writes a little-endian 16-bit value.
func (m *Memory) WriteU16(addr uint32, required uint8, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return m.Write(addr, required, buf[:])
}

// WriteU32 writes a little-endian 32-bit value.
func (m *Memory) WriteU32(addr uint32, required uint8, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return m.Write(addr, required, buf[:])
}
