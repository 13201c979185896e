// Package loader reads a static RV32I SysV ELF executable and builds
// the initial emulator process state from it: memory populated with
// PT_LOAD segments, a stack carrying the SysV process-start layout,
// and a heap region ready for brk(2).
//
// ELF parsing itself is delegated to the standard library's debug/elf
// package; this package only validates that the file matches the
// narrow profile the emulator supports and translates program headers
// into the emulator's own memory and permission model.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"rv32emu/pkg/cpu"
	"rv32emu/pkg/memory"
)

// The following errors classify why an ELF file was rejected. Each
// name mirrors a validation check the emulator performs before it will
// trust the file's segments.
var (
	ErrInvalidBitness    = errors.New("loader: not a 32-bit ELF")
	ErrInvalidEndianness = errors.New("loader: not little-endian")
	ErrInvalidOS         = errors.New("loader: not a SysV ABI executable")
	ErrInvalidElfType    = errors.New("loader: not a static executable (ET_EXEC)")
	ErrInvalidMachine    = errors.New("loader: not a RISC-V executable")
)

// Memory-map defaults (spec §6): 25 MiB total virtual space, ~1 MiB
// stack, ~2 MiB heap. Exposed as variables, not constants, so a future
// caller can parameterize them without touching this file's logic.
var (
	DefaultMemorySize = uint32(25 * 1024 * 1024)
	DefaultStackSize  = uint32(1 * 1024 * 1024)
	DefaultHeapSize   = uint32(2 * 1024 * 1024)
)

// Config bundles the memory-map sizes Load uses; the zero value is
// invalid, use DefaultConfig.
type Config struct {
	MemorySize uint32
	StackSize  uint32
	HeapSize   uint32
}

// DefaultConfig returns the spec's default 25 MiB/1 MiB/2 MiB layout.
func DefaultConfig() Config {
	return Config{
		MemorySize: DefaultMemorySize,
		StackSize:  DefaultStackSize,
		HeapSize:   DefaultHeapSize,
	}
}

// Load reads the ELF file at path, validates it against the emulator's
// supported profile (ELF32, little-endian, SysV ABI, ET_EXEC,
// EM_RISCV), maps every PT_LOAD segment into a freshly allocated
// memory, builds the SysV initial stack, and returns a CPU ready to
// run starting at the ELF entry point.
func Load(path string) (*cpu.CPU, error) {
	return LoadConfig(path, DefaultConfig())
}

// LoadConfig is Load with an explicit memory-map configuration.
func LoadConfig(path string, cfg Config) (*cpu.CPU, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()

	if err := validate(f); err != nil {
		return nil, err
	}

	mem := memory.New(cfg.MemorySize)

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(mem, prog); err != nil {
			return nil, fmt.Errorf("loader: segment at 0x%x: %w", prog.Vaddr, err)
		}
	}

	c := cpu.New(mem, uint32(f.Entry))

	argv0 := path
	spEnd, err := buildInitialStack(mem, cfg.StackSize, argv0)
	if err != nil {
		return nil, fmt.Errorf("loader: stack init: %w", err)
	}
	c.WriteReg(2, spEnd) // x2 = sp

	heapStart, heapEnd, err := mem.Allocate(cfg.HeapSize, memory.RAW|memory.Write)
	if err != nil {
		return nil, fmt.Errorf("loader: heap allocation: %w", err)
	}
	c.Brk = heapStart
	c.HeapEnd = heapEnd

	return c, nil
}

func validate(f *elf.File) error {
	if f.Class != elf.ELFCLASS32 {
		return ErrInvalidBitness
	}
	if f.Data != elf.ELFDATA2LSB {
		return ErrInvalidEndianness
	}
	if f.OSABI != elf.ELFOSABI_NONE {
		return ErrInvalidOS
	}
	if f.Type != elf.ET_EXEC {
		return ErrInvalidElfType
	}
	if f.Machine != elf.EM_RISCV {
		return ErrInvalidMachine
	}
	return nil
}

func loadSegment(mem *memory.Memory, prog *elf.Prog) error {
	start := uint32(prog.Vaddr)
	memEnd := roundUp4(start + uint32(prog.Memsz))

	if err := mem.Claim(start, memEnd); err != nil {
		return fmt.Errorf("claiming [0x%x,0x%x): %w", start, memEnd, err)
	}

	data := make([]byte, prog.Filesz)
	if _, err := io.ReadFull(prog.Open(), data); err != nil {
		return fmt.Errorf("reading segment contents: %w", err)
	}
	mem.WriteNoCheck(start, data)
	// Bytes between file_size and mem_end stay zero, covering BSS.

	var perm uint8
	if prog.Flags&elf.PF_R != 0 {
		perm |= memory.Read
	}
	if prog.Flags&elf.PF_W != 0 {
		perm |= memory.Write
	}
	if prog.Flags&elf.PF_X != 0 {
		perm |= memory.Exec
	}
	mem.SetPermissions(start, memEnd, perm)

	log.Info("loaded segment",
		"start", fmt.Sprintf("0x%08x", start),
		"file_end", fmt.Sprintf("0x%08x", start+uint32(prog.Filesz)),
		"mem_end", fmt.Sprintf("0x%08x", memEnd),
		"flags", flagString(prog.Flags),
	)
	return nil
}

func flagString(f elf.ProgFlag) string {
	out := []byte("---")
	if f&elf.PF_R != 0 {
		out[0] = 'R'
	}
	if f&elf.PF_W != 0 {
		out[1] = 'W'
	}
	if f&elf.PF_X != 0 {
		out[2] = 'X'
	}
	return string(out)
}

func roundUp4(v uint32) uint32 {
	return (v + 3) &^ 3
}

// buildInitialStack allocates the stack region and pushes the SysV
// process-start layout downward from its top: program-name bytes, the
// auxv terminator (0,0), the envp terminator, the argv terminator,
// argv[0] (pointing at the program-name bytes), and finally argc. It
// returns the final stack pointer.
func buildInitialStack(mem *memory.Memory, stackSize uint32, argv0 string) (uint32, error) {
	_, stackEnd, err := mem.Allocate(stackSize, memory.RAW|memory.Write)
	if err != nil {
		return 0, err
	}

	sp := stackEnd

	nameBytes := append([]byte(argv0), 0)
	sp -= uint32(len(nameBytes))
	sp = sp &^ 3 // keep the pointer word-aligned for what follows
	nameAddr := sp
	if err := mem.Write(nameAddr, memory.Write, nameBytes); err != nil {
		return 0, err
	}

	push32 := func(v uint32) error {
		sp -= 4
		return mem.WriteU32(sp, memory.Write, v)
	}

	// auxv terminator: two zero words (type=0, value=0)
	if err := push32(0); err != nil {
		return 0, err
	}
	if err := push32(0); err != nil {
		return 0, err
	}
	// envp terminator
	if err := push32(0); err != nil {
		return 0, err
	}
	// argv terminator
	if err := push32(0); err != nil {
		return 0, err
	}
	// argv[0]
	if err := push32(nameAddr); err != nil {
		return 0, err
	}
	// argc
	if err := push32(1); err != nil {
		return 0, err
	}

	return sp, nil
}
