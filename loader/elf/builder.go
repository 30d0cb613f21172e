package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	ds "github.com/ranmrdrakono/karst/data_structures"
)

// BuildSegment describes one loadable segment for BuildImage. MemSize may
// exceed len(Data); the tail is zero-filled memory.
type BuildSegment struct {
	Vaddr   uintptr
	MemSize uintptr
	Perm    ds.MapPermission
	Data    []byte
}

const (
	ehdrSize = 64
	phdrSize = 56
)

func permToProgFlags(p ds.MapPermission) elf.ProgFlag {
	res := elf.ProgFlag(0)
	if p.Readable() {
		res |= elf.PF_R
	}
	if p.Writable() {
		res |= elf.PF_W
	}
	if p.Executable() {
		res |= elf.PF_X
	}
	return res
}

// BuildImage assembles a minimal statically linked ELF64 image. It exists
// so the boot demo and the tests can load executables without fixture
// files on disk.
func BuildImage(entry uintptr, segs []BuildSegment) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	ident := make([]byte, 16)
	copy(ident, elfMagic)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	buf.Write(ident)

	binary.Write(&buf, le, uint16(elf.ET_EXEC))
	binary.Write(&buf, le, uint16(elf.EM_RISCV))
	binary.Write(&buf, le, uint32(elf.EV_CURRENT))
	binary.Write(&buf, le, uint64(entry))
	binary.Write(&buf, le, uint64(ehdrSize)) // phoff
	binary.Write(&buf, le, uint64(0))        // shoff
	binary.Write(&buf, le, uint32(0))        // flags
	binary.Write(&buf, le, uint16(ehdrSize))
	binary.Write(&buf, le, uint16(phdrSize))
	binary.Write(&buf, le, uint16(len(segs)))
	binary.Write(&buf, le, uint16(0)) // shentsize
	binary.Write(&buf, le, uint16(0)) // shnum
	binary.Write(&buf, le, uint16(0)) // shstrndx

	off := uint64(ehdrSize + phdrSize*len(segs))
	for _, seg := range segs {
		binary.Write(&buf, le, uint32(elf.PT_LOAD))
		binary.Write(&buf, le, uint32(permToProgFlags(seg.Perm)))
		binary.Write(&buf, le, off)
		binary.Write(&buf, le, uint64(seg.Vaddr)) // vaddr
		binary.Write(&buf, le, uint64(seg.Vaddr)) // paddr
		binary.Write(&buf, le, uint64(len(seg.Data)))
		binary.Write(&buf, le, uint64(seg.MemSize))
		binary.Write(&buf, le, uint64(0x1000)) // align
		off += uint64(len(seg.Data))
	}
	for _, seg := range segs {
		buf.Write(seg.Data)
	}
	return buf.Bytes()
}
