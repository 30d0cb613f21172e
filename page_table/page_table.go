package page_table

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	ds "github.com/ranmrdrakono/karst/data_structures"
	fp "github.com/ranmrdrakono/karst/frame_pool"
)

// Sv39 layout: three levels of 512 entries, 9 index bits per level. A leaf
// entry encodes PPN<<10 plus the flag bits below.
const (
	pageLevels     = 3
	levelBits      = 9
	entriesPerNode = 1 << levelBits
	levelMask      = entriesPerNode - 1

	ppnShift = 10
	ppnMask  = (uint64(1) << 44) - 1

	satpModeSv39 = uintptr(8) << 60
)

type PTEFlags uint64

const (
	FlagV PTEFlags = 1 << 0
	FlagR PTEFlags = 1 << 1
	FlagW PTEFlags = 1 << 2
	FlagX PTEFlags = 1 << 3
	FlagU PTEFlags = 1 << 4
)

// FlagsFor converts region permission bits to leaf entry flags. The bit
// positions coincide, only the valid bit is added.
func FlagsFor(perm ds.MapPermission) PTEFlags {
	return PTEFlags(perm) | FlagV
}

// Entry is one leaf page table entry as walked by the hardware.
type Entry uint64

func (e Entry) Valid() bool {
	return Entry(FlagV)&e != 0
}

func (e Entry) PPN() ds.PhysPageNum {
	return ds.PhysPageNum((uint64(e) >> ppnShift) & ppnMask)
}

func (e Entry) Flags() PTEFlags {
	return PTEFlags(e) & (FlagV | FlagR | FlagW | FlagX | FlagU)
}

func (e Entry) Readable() bool {
	return e&Entry(FlagR) != 0
}

func (e Entry) Writable() bool {
	return e&Entry(FlagW) != 0
}

func (e Entry) Executable() bool {
	return e&Entry(FlagX) != 0
}

func (e Entry) User() bool {
	return e&Entry(FlagU) != 0
}

// PageTable owns the radix tree of one address space. Every node, the root
// included, is a single frame taken from the frame pool; there is no other
// allocator behind the table.
type PageTable struct {
	root       ds.PhysPageNum
	nodeFrames []*fp.FrameTracker
}

func New() *PageTable {
	frame, ok := fp.Alloc()
	if !ok {
		log.Fatal("no frame for page table root")
	}
	return &PageTable{
		root:       frame.PPN(),
		nodeFrames: []*fp.FrameTracker{frame},
	}
}

// Token is the satp value that activates this table.
func (pt *PageTable) Token() uintptr {
	return satpModeSv39 | uintptr(pt.root)
}

func levelIndex(vpn ds.VirtPageNum, level int) int {
	return int(uintptr(vpn)>>(levelBits*level)) & levelMask
}

func nodeEntry(ppn ds.PhysPageNum, idx int) uint64 {
	b := fp.BytesOf(ppn)
	return binary.LittleEndian.Uint64(b[idx*8:])
}

func setNodeEntry(ppn ds.PhysPageNum, idx int, raw uint64) {
	b := fp.BytesOf(ppn)
	binary.LittleEndian.PutUint64(b[idx*8:], raw)
}

// walkAlloc descends to the leaf node for vpn, allocating missing
// intermediate nodes, and returns the leaf node ppn.
func (pt *PageTable) walkAlloc(vpn ds.VirtPageNum) ds.PhysPageNum {
	node := pt.root
	for level := pageLevels - 1; level > 0; level-- {
		idx := levelIndex(vpn, level)
		raw := nodeEntry(node, idx)
		if Entry(raw).Valid() {
			node = Entry(raw).PPN()
			continue
		}
		frame, ok := fp.Alloc()
		if !ok {
			log.Fatal("no frame for page table node")
		}
		pt.nodeFrames = append(pt.nodeFrames, frame)
		setNodeEntry(node, idx, uint64(frame.PPN())<<ppnShift|uint64(FlagV))
		node = frame.PPN()
	}
	return node
}

// walkFind descends without allocating; ok is false if any level is absent.
func (pt *PageTable) walkFind(vpn ds.VirtPageNum) (ds.PhysPageNum, bool) {
	node := pt.root
	for level := pageLevels - 1; level > 0; level-- {
		raw := nodeEntry(node, levelIndex(vpn, level))
		if !Entry(raw).Valid() {
			return 0, false
		}
		node = Entry(raw).PPN()
	}
	return node, true
}

// Map installs vpn -> ppn with the given flags. Remapping a vpn that is
// already valid is a bug in the caller.
func (pt *PageTable) Map(vpn ds.VirtPageNum, ppn ds.PhysPageNum, flags PTEFlags) {
	node := pt.walkAlloc(vpn)
	idx := levelIndex(vpn, 0)
	if Entry(nodeEntry(node, idx)).Valid() {
		log.WithFields(log.Fields{"vpn": vpn}).Fatal("remap of mapped vpn")
	}
	setNodeEntry(node, idx, uint64(ppn)<<ppnShift|uint64(flags))
}

// Unmap removes the entry for vpn, which must currently be mapped.
func (pt *PageTable) Unmap(vpn ds.VirtPageNum) {
	node, ok := pt.walkFind(vpn)
	if !ok {
		log.WithFields(log.Fields{"vpn": vpn}).Fatal("unmap of unmapped vpn")
	}
	idx := levelIndex(vpn, 0)
	if !Entry(nodeEntry(node, idx)).Valid() {
		log.WithFields(log.Fields{"vpn": vpn}).Fatal("unmap of unmapped vpn")
	}
	setNodeEntry(node, idx, 0)
}

// Translate walks the table for vpn and returns the leaf entry if present.
func (pt *PageTable) Translate(vpn ds.VirtPageNum) (Entry, bool) {
	node, ok := pt.walkFind(vpn)
	if !ok {
		return 0, false
	}
	e := Entry(nodeEntry(node, levelIndex(vpn, 0)))
	if !e.Valid() {
		return 0, false
	}
	return e, true
}

// Release returns every node frame to the pool. Leaf frames belong to the
// regions that mapped them and are not touched here.
func (pt *PageTable) Release() {
	for _, frame := range pt.nodeFrames {
		frame.Release()
	}
	pt.nodeFrames = nil
}
