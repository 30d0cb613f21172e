package task

import (
	"github.com/ranmrdrakono/karst/arch"
)

// SysMmap validates the raw syscall arguments and delegates to the current
// task's space. prot uses bit0=read, bit1=write, bit2=execute; all higher
// bits must be clear and at least one of the three must be set.
func SysMmap(start, length, prot uintptr) int {
	if length == 0 {
		return 0
	}
	if prot>>3 != 0 || prot&0x7 == 0 || start%arch.PageSize != 0 {
		return -1
	}
	// a length that wraps past the top of the address space must not reach
	// the mapping primitives with end < start
	if start+length < start {
		return -1
	}
	t := Current()
	if t == nil {
		return -1
	}
	inner, drop := t.ExclusiveInner()
	defer drop()
	return inner.MemorySet.Mmap(start, start+length, prot)
}

// SysMunmap validates the raw syscall arguments and delegates to the
// current task's space.
func SysMunmap(start, length uintptr) int {
	if length == 0 {
		return 0
	}
	if start%arch.PageSize != 0 || start+length < start {
		return -1
	}
	t := Current()
	if t == nil {
		return -1
	}
	inner, drop := t.ExclusiveInner()
	defer drop()
	return inner.MemorySet.Munmap(start, start+length)
}
