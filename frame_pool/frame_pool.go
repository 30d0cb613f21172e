package frame_pool

import (
	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/karst/arch"
	ds "github.com/ranmrdrakono/karst/data_structures"
)

const log_frames = false

// pool hands out single physical pages from the memory between the end of
// the kernel image and the physical memory ceiling. One byte slice backs
// the whole range; page table nodes and framed region pages all live in it.
type pool struct {
	memory   []byte
	base     ds.PhysPageNum
	next     ds.PhysPageNum
	end      ds.PhysPageNum
	recycled []ds.PhysPageNum
}

var current *pool

// Init builds a fresh pool covering [KernelEnd, MemoryEnd). Re-initialising
// discards all outstanding frames; only boot and test setup may call it.
func Init() {
	base := ds.PhysAddr(arch.Layout().KernelEnd).Ceil()
	end := ds.PhysAddr(arch.MemoryEnd).Floor()
	frames := uintptr(end) - uintptr(base)
	current = &pool{
		memory: make([]byte, frames*arch.PageSize),
		base:   base,
		next:   base,
		end:    end,
	}
	log.WithFields(log.Fields{"base": base, "end": end, "frames": frames}).Debug("frame pool initialised")
}

func EnsureInit() {
	if current == nil {
		Init()
	}
}

// FrameTracker is the move-only handle to one allocated frame. Exactly one
// owner holds it at a time; Release returns the frame to the pool and may
// be called once.
type FrameTracker struct {
	ppn      ds.PhysPageNum
	released bool
}

func (f *FrameTracker) PPN() ds.PhysPageNum {
	return f.ppn
}

// Bytes is the page-sized view of the frame's contents.
func (f *FrameTracker) Bytes() []byte {
	if f.released {
		log.WithFields(log.Fields{"ppn": f.ppn}).Fatal("byte view of released frame")
	}
	return BytesOf(f.ppn)
}

func (f *FrameTracker) Release() {
	if f.released {
		log.WithFields(log.Fields{"ppn": f.ppn}).Fatal("double release of frame")
	}
	f.released = true
	current.recycled = append(current.recycled, f.ppn)
	if log_frames {
		log.WithFields(log.Fields{"ppn": f.ppn}).Debug("frame released")
	}
}

// Alloc hands out one zeroed frame. The second result is false when
// physical memory is exhausted.
func Alloc() (*FrameTracker, bool) {
	p := current
	var ppn ds.PhysPageNum
	if n := len(p.recycled); n > 0 {
		ppn = p.recycled[n-1]
		p.recycled = p.recycled[:n-1]
	} else if p.next < p.end {
		ppn = p.next
		p.next++
	} else {
		return nil, false
	}
	b := BytesOf(ppn)
	for i := range b {
		b[i] = 0
	}
	if log_frames {
		log.WithFields(log.Fields{"ppn": ppn}).Debug("frame allocated")
	}
	return &FrameTracker{ppn: ppn}, true
}

// BytesOf exposes the contents of a pool frame. The ppn must come from this
// pool; identity-mapped kernel pages have no backing bytes here.
func BytesOf(ppn ds.PhysPageNum) []byte {
	p := current
	if ppn < p.base || ppn >= p.end {
		log.WithFields(log.Fields{"ppn": ppn}).Fatal("ppn outside frame pool")
	}
	off := (uintptr(ppn) - uintptr(p.base)) * arch.PageSize
	return p.memory[off : off+arch.PageSize]
}

// Remaining counts frames still available for allocation.
func Remaining() int {
	p := current
	return int(uintptr(p.end)-uintptr(p.next)) + len(p.recycled)
}
