package elf

import (
	"bytes"
	"debug/elf"
	"io"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"

	ds "github.com/ranmrdrakono/karst/data_structures"
)

// Segment is one loadable program segment of an executable image. Data
// holds the file-backed bytes and may be shorter than the virtual span;
// the remainder is zero-filled memory.
type Segment struct {
	VStart, VEnd ds.VirtAddr
	Perm         ds.MapPermission
	Data         []byte
}

// Image is the parsed metadata an address space is built from.
type Image struct {
	Entry    uintptr
	Segments []Segment
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

func elfFlagsToPermission(in elf.ProgFlag) ds.MapPermission {
	res := ds.MapPermission(0)
	if in&elf.PF_R != 0 {
		res |= ds.PermR
	}
	if in&elf.PF_W != 0 {
		res |= ds.PermW
	}
	if in&elf.PF_X != 0 {
		res |= ds.PermX
	}
	return res
}

// Parse validates and dissects an in-memory executable image. A missing
// magic signature is an error; loading paths treat it as fatal.
func Parse(data []byte) (*Image, *errors.Error) {
	if len(data) < len(elfMagic) || !bytes.Equal(data[:len(elfMagic)], elfMagic) {
		return nil, errors.Errorf("invalid elf magic")
	}
	file, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	res := &Image{Entry: uintptr(file.Entry)}
	for _, prog := range file.Progs {
		hdr := prog.ProgHeader
		if hdr.Type != elf.PT_LOAD {
			continue
		}
		seg := Segment{
			VStart: ds.VirtAddr(hdr.Vaddr),
			VEnd:   ds.VirtAddr(hdr.Vaddr + hdr.Memsz),
			Perm:   elfFlagsToPermission(hdr.Flags),
			Data:   make([]byte, hdr.Filesz),
		}
		if _, err := io.ReadFull(prog.Open(), seg.Data); err != nil {
			return nil, errors.Wrap(err, 0)
		}
		log.WithFields(log.Fields{
			"vstart": seg.VStart,
			"vend":   seg.VEnd,
			"filesz": hdr.Filesz,
			"perm":   seg.Perm,
		}).Debug("load segment")
		res.Segments = append(res.Segments, seg)
	}
	return res, nil
}
