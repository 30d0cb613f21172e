package memory_set

import (
	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/karst/arch"
	ds "github.com/ranmrdrakono/karst/data_structures"
	fp "github.com/ranmrdrakono/karst/frame_pool"
	loader "github.com/ranmrdrakono/karst/loader/elf"
	pt "github.com/ranmrdrakono/karst/page_table"
)

const log_mmap = false

// MemorySet owns one page table and the areas mapped through it. Every
// mapped page except the trampoline is tracked by exactly one area.
type MemorySet struct {
	pageTable *pt.PageTable
	areas     []*MapArea
}

func NewBare() *MemorySet {
	return &MemorySet{pageTable: pt.New()}
}

func (ms *MemorySet) Token() uintptr {
	return ms.pageTable.Token()
}

func (ms *MemorySet) Translate(vpn ds.VirtPageNum) (pt.Entry, bool) {
	return ms.pageTable.Translate(vpn)
}

func (ms *MemorySet) AreaCount() int {
	return len(ms.areas)
}

// Activate installs this space's root table on the hart and flushes the
// translation cache. The trampoline mapping is what keeps the switching
// code executable across the satp write.
func (ms *MemorySet) Activate() {
	arch.SetSATP(ms.Token())
	arch.FlushTLB()
}

func (ms *MemorySet) push(area *MapArea, data []byte) {
	area.Map(ms.pageTable)
	if data != nil {
		area.CopyData(ms.pageTable, data)
	}
	ms.areas = append(ms.areas, area)
}

// InsertFramedArea maps a new framed area over [startVA, endVA). The
// caller must guarantee the range conflicts with no existing area.
func (ms *MemorySet) InsertFramedArea(startVA, endVA ds.VirtAddr, perm ds.MapPermission) {
	ms.push(NewMapArea(startVA, endVA, MapFramed, perm), nil)
}

// RemoveAreaWithStartVPN unmaps and drops the area starting exactly at
// vpn, if there is one.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn ds.VirtPageNum) {
	for i, area := range ms.areas {
		if area.rng.Start == vpn {
			area.Unmap(ms.pageTable)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return
		}
	}
}

// The trampoline is mapped directly against the page table and never
// tracked as an area, so no removal path can ever unmap it.
func (ms *MemorySet) mapTrampoline() {
	ms.pageTable.Map(
		ds.VirtAddr(arch.Trampoline).Floor(),
		ds.PhysAddr(arch.Layout().Strampoline()).Floor(),
		pt.FlagR|pt.FlagX|pt.FlagV,
	)
}

// NewKernel builds the kernel's identity-mapped space: trampoline plus the
// five link-time sections, without kernel stacks.
func NewKernel() *MemorySet {
	ms := NewBare()
	ms.mapTrampoline()
	l := arch.Layout()
	sections := []struct {
		name       string
		start, end uintptr
		perm       ds.MapPermission
	}{
		{".text", l.TextStart, l.TextEnd, ds.PermR | ds.PermX},
		{".rodata", l.RodataStart, l.RodataEnd, ds.PermR},
		{".data", l.DataStart, l.DataEnd, ds.PermR | ds.PermW},
		{".bss", l.BssStart, l.BssEnd, ds.PermR | ds.PermW},
		{"physical memory", l.KernelEnd, arch.MemoryEnd, ds.PermR | ds.PermW},
	}
	for _, sec := range sections {
		log.WithFields(log.Fields{
			"section": sec.name,
			"start":   sec.start,
			"end":     sec.end,
		}).Info("mapping kernel section")
		ms.push(NewMapArea(ds.VirtAddr(sec.start), ds.VirtAddr(sec.end), MapIdentical, sec.perm), nil)
	}
	return ms
}

// FromELF builds a user space from an executable image: trampoline, one
// framed area per LOAD segment with the user bit forced, a guard page, the
// user stack and the trap context. Returns the space, the initial stack
// pointer and the entry point. An invalid image aborts the spawn path.
func FromELF(data []byte) (*MemorySet, uintptr, uintptr) {
	ms := NewBare()
	ms.mapTrampoline()
	img, err := loader.Parse(data)
	if err != nil {
		log.WithFields(log.Fields{"error": err, "stack": err.ErrorStack()}).Fatal("invalid executable image")
	}
	maxEndVPN := ds.VirtPageNum(0)
	for _, seg := range img.Segments {
		area := NewMapArea(seg.VStart, seg.VEnd, MapFramed, seg.Perm|ds.PermU)
		if area.rng.End > maxEndVPN {
			maxEndVPN = area.rng.End
		}
		ms.push(area, seg.Data)
	}
	// one unmapped guard page between the image and the stack
	stackBottom := uintptr(maxEndVPN.Addr()) + arch.PageSize
	stackTop := stackBottom + arch.UserStackSize
	ms.push(NewMapArea(
		ds.VirtAddr(stackBottom), ds.VirtAddr(stackTop),
		MapFramed, ds.PermR|ds.PermW|ds.PermU,
	), nil)
	ms.push(NewMapArea(
		ds.VirtAddr(arch.TrapContext), ds.VirtAddr(arch.Trampoline),
		MapFramed, ds.PermR|ds.PermW,
	), nil)
	return ms, stackTop, img.Entry
}

// FromExisted duplicates a user space eagerly: fresh frames for every
// area, byte-for-byte page copies through each side's own translation.
// Nothing is shared afterwards.
func FromExisted(src *MemorySet) *MemorySet {
	ms := NewBare()
	ms.mapTrampoline()
	for _, area := range src.areas {
		ms.push(FromAnother(area), nil)
		for vpn := area.rng.Start; vpn < area.rng.End; vpn++ {
			srcEntry, ok := src.Translate(vpn)
			if !ok {
				log.WithFields(log.Fields{"vpn": vpn}).Fatal("source page not mapped")
			}
			dstEntry, ok := ms.Translate(vpn)
			if !ok {
				log.WithFields(log.Fields{"vpn": vpn}).Fatal("copied page not mapped")
			}
			copy(fp.BytesOf(dstEntry.PPN()), fp.BytesOf(srcEntry.PPN()))
		}
	}
	log.WithFields(log.Fields{
		"src": src.Fingerprint(),
		"dst": ms.Fingerprint(),
	}).Debug("duplicated address space")
	return ms
}

// Mmap maps a new framed area over [start, end) with permissions from the
// low three prot bits plus the user bit. Fails with -1 when the range
// intersects any existing area; never partially applies.
func (ms *MemorySet) Mmap(start, end, prot uintptr) int {
	lvpn := ds.VirtAddr(start).Floor()
	rvpn := ds.VirtAddr(end).Ceil()
	for _, area := range ms.areas {
		if area.rng.Intersects(lvpn, rvpn) {
			if log_mmap {
				log.WithFields(log.Fields{
					"start": area.rng.Start,
					"end":   area.rng.End,
				}).Debug("mmap range already mapped")
			}
			return -1
		}
	}
	perm := ds.MapPermission(uint8(prot)<<1) | ds.PermU
	ms.InsertFramedArea(lvpn.Addr(), rvpn.Addr(), perm)
	return 0
}

// Munmap unmaps every area fully contained in [start, end). Fails with -1
// unless those areas together cover the whole range; an area straddling
// the boundary is neither split nor unmapped.
func (ms *MemorySet) Munmap(start, end uintptr) int {
	lvpn := ds.VirtAddr(start).Floor()
	rvpn := ds.VirtAddr(end).Ceil()
	covered := uintptr(0)
	for _, area := range ms.areas {
		if area.rng.ContainedIn(lvpn, rvpn) {
			covered += area.rng.Length()
		}
	}
	if covered < uintptr(rvpn)-uintptr(lvpn) {
		if log_mmap {
			log.WithFields(log.Fields{"lvpn": lvpn, "rvpn": rvpn}).Debug("munmap range not fully covered")
		}
		return -1
	}
	for _, area := range ms.areas {
		if area.rng.ContainedIn(lvpn, rvpn) {
			area.Unmap(ms.pageTable)
			area.rng = ds.NewVPNRange(area.rng.Start, area.rng.Start)
		}
	}
	kept := ms.areas[:0]
	for _, area := range ms.areas {
		if !area.rng.IsEmpty() {
			kept = append(kept, area)
		}
	}
	ms.areas = kept
	return 0
}

// RecycleDataPages drops every area, returning all owned frames to the
// pool. The page table itself stays intact; ReleaseTable reclaims its node
// frames when the owning process is torn down.
func (ms *MemorySet) RecycleDataPages() {
	for _, area := range ms.areas {
		area.release()
	}
	ms.areas = nil
}

func (ms *MemorySet) ReleaseTable() {
	ms.pageTable.Release()
}
