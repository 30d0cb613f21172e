package memory_set

import (
	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/karst/arch"
	ds "github.com/ranmrdrakono/karst/data_structures"
	fp "github.com/ranmrdrakono/karst/frame_pool"
	pt "github.com/ranmrdrakono/karst/page_table"
)

type MapType int

const (
	// MapIdentical installs vpn == ppn translations and owns no frames.
	MapIdentical MapType = iota
	// MapFramed backs every page with one exclusively owned pool frame.
	MapFramed
)

// MapArea is a contiguous range of virtual pages with one mapping policy
// and one permission set. For framed areas it owns the physical frames
// behind its pages; dataFrames keys are exactly the pages currently mapped.
type MapArea struct {
	rng        ds.VPNRange
	mapType    MapType
	perm       ds.MapPermission
	dataFrames map[ds.VirtPageNum]*fp.FrameTracker
}

func NewMapArea(start, end ds.VirtAddr, mapType MapType, perm ds.MapPermission) *MapArea {
	return &MapArea{
		rng:        ds.NewVPNRange(start.Floor(), end.Ceil()),
		mapType:    mapType,
		perm:       perm,
		dataFrames: make(map[ds.VirtPageNum]*fp.FrameTracker),
	}
}

// FromAnother clones range, type and permission but none of the frames.
func FromAnother(other *MapArea) *MapArea {
	return &MapArea{
		rng:        other.rng,
		mapType:    other.mapType,
		perm:       other.perm,
		dataFrames: make(map[ds.VirtPageNum]*fp.FrameTracker),
	}
}

func (a *MapArea) Range() ds.VPNRange {
	return a.rng
}

func (a *MapArea) Perm() ds.MapPermission {
	return a.perm
}

func (a *MapArea) MapOne(table *pt.PageTable, vpn ds.VirtPageNum) {
	var ppn ds.PhysPageNum
	switch a.mapType {
	case MapIdentical:
		ppn = ds.PhysPageNum(vpn)
	case MapFramed:
		frame, ok := fp.Alloc()
		if !ok {
			log.WithFields(log.Fields{"vpn": vpn}).Fatal("out of physical frames")
		}
		ppn = frame.PPN()
		a.dataFrames[vpn] = frame
	}
	table.Map(vpn, ppn, pt.FlagsFor(a.perm))
}

func (a *MapArea) UnmapOne(table *pt.PageTable, vpn ds.VirtPageNum) {
	if a.mapType == MapFramed {
		frame := a.dataFrames[vpn]
		delete(a.dataFrames, vpn)
		frame.Release()
	}
	table.Unmap(vpn)
}

func (a *MapArea) Map(table *pt.PageTable) {
	for vpn := a.rng.Start; vpn < a.rng.End; vpn++ {
		a.MapOne(table, vpn)
	}
}

func (a *MapArea) Unmap(table *pt.PageTable) {
	for vpn := a.rng.Start; vpn < a.rng.End; vpn++ {
		a.UnmapOne(table, vpn)
	}
}

// CopyData writes data into the area's already-mapped pages in page-sized
// chunks starting at the first page. The frames were zeroed on allocation,
// so a short buffer leaves a zero tail. Framed areas only.
func (a *MapArea) CopyData(table *pt.PageTable, data []byte) {
	if a.mapType != MapFramed {
		log.Fatal("copy into non-framed area")
	}
	if len(data) == 0 {
		return
	}
	start := uintptr(0)
	vpn := a.rng.Start
	total := uintptr(len(data))
	for {
		end := start + arch.PageSize
		if end > total {
			end = total
		}
		src := data[start:end]
		entry, ok := table.Translate(vpn)
		if !ok {
			log.WithFields(log.Fields{"vpn": vpn}).Fatal("copy into unmapped page")
		}
		copy(fp.BytesOf(entry.PPN())[:len(src)], src)
		start += arch.PageSize
		if start >= total {
			break
		}
		vpn++
	}
}

// release drops every owned frame without touching the page table. Used by
// address-space teardown where the whole table is reclaimed separately.
func (a *MapArea) release() {
	for vpn, frame := range a.dataFrames {
		delete(a.dataFrames, vpn)
		frame.Release()
	}
}
