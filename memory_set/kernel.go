package memory_set

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/karst/arch"
	ds "github.com/ranmrdrakono/karst/data_structures"
	fp "github.com/ranmrdrakono/karst/frame_pool"
	"github.com/ranmrdrakono/karst/up_cell"
)

// The kernel's space is a process-wide singleton behind an exclusive
// cell, lazily built on first use and never torn down.
var (
	kernelOnce  sync.Once
	kernelCell  up_cell.Cell
	kernelSpace *MemorySet
)

// KernelExclusive borrows the kernel space. The returned drop function
// must be called when done; a second borrow before that is fatal.
func KernelExclusive() (*MemorySet, func()) {
	kernelOnce.Do(func() {
		fp.EnsureInit()
		kernelSpace = NewKernel()
	})
	kernelCell.Borrow()
	return kernelSpace, kernelCell.Drop
}

func KernelToken() uintptr {
	ks, drop := KernelExclusive()
	defer drop()
	return ks.Token()
}

// RemapTest checks the kernel section permissions after construction:
// text must not be writable, rodata must not be writable, data must not
// be executable.
func RemapTest() {
	ks, drop := KernelExclusive()
	defer drop()
	l := arch.Layout()
	midText := ds.VirtAddr((l.TextStart + l.TextEnd) / 2).Floor()
	midRodata := ds.VirtAddr((l.RodataStart + l.RodataEnd) / 2).Floor()
	midData := ds.VirtAddr((l.DataStart + l.DataEnd) / 2).Floor()

	if e, ok := ks.Translate(midText); !ok || e.Writable() {
		log.WithFields(log.Fields{"vpn": midText}).Fatal("kernel text is writable")
	}
	if e, ok := ks.Translate(midRodata); !ok || e.Writable() {
		log.WithFields(log.Fields{"vpn": midRodata}).Fatal("kernel rodata is writable")
	}
	if e, ok := ks.Translate(midData); !ok || e.Executable() {
		log.WithFields(log.Fields{"vpn": midData}).Fatal("kernel data is executable")
	}
	log.Info("remap self-test passed")
}
