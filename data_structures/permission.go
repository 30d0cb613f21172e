package data_structures

// MapPermission mirrors the R/W/X/U bits of a leaf page table entry. The
// bit positions line up with the hardware encoding, which is what lets the
// mmap syscall build a permission from prot<<1 directly.
type MapPermission uint8

const (
	PermR MapPermission = 1 << 1
	PermW MapPermission = 1 << 2
	PermX MapPermission = 1 << 3
	PermU MapPermission = 1 << 4
)

func (p MapPermission) Readable() bool {
	return p&PermR != 0
}

func (p MapPermission) Writable() bool {
	return p&PermW != 0
}

func (p MapPermission) Executable() bool {
	return p&PermX != 0
}

func (p MapPermission) User() bool {
	return p&PermU != 0
}
