package data_structures

import (
	"github.com/ranmrdrakono/karst/arch"
)

type VirtAddr uintptr
type PhysAddr uintptr
type VirtPageNum uintptr
type PhysPageNum uintptr

// Floor is the number of the page containing this address.
func (a VirtAddr) Floor() VirtPageNum {
	return VirtPageNum(uintptr(a) >> arch.PageSizeBits)
}

// Ceil is the number of the first page at or above this address.
func (a VirtAddr) Ceil() VirtPageNum {
	return VirtPageNum((uintptr(a) + arch.PageSize - 1) >> arch.PageSizeBits)
}

func (a VirtAddr) PageOffset() uintptr {
	return uintptr(a) & (arch.PageSize - 1)
}

func (a VirtAddr) Aligned() bool {
	return a.PageOffset() == 0
}

func (n VirtPageNum) Addr() VirtAddr {
	return VirtAddr(uintptr(n) << arch.PageSizeBits)
}

func (a PhysAddr) Floor() PhysPageNum {
	return PhysPageNum(uintptr(a) >> arch.PageSizeBits)
}

func (a PhysAddr) Ceil() PhysPageNum {
	return PhysPageNum((uintptr(a) + arch.PageSize - 1) >> arch.PageSizeBits)
}

func (n PhysPageNum) Addr() PhysAddr {
	return PhysAddr(uintptr(n) << arch.PageSizeBits)
}
