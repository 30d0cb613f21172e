package arch

// Layout constants for the simulated RV64 machine. The two highest pages of
// every address space are reserved: the trampoline sits in the topmost page
// and the trap context save area in the page below it.
const (
	PageSize     uintptr = 0x1000
	PageSizeBits         = 12

	UserStackSize uintptr = PageSize * 2
	MemoryEnd     uintptr = 0x8800_0000

	Trampoline  uintptr = ^uintptr(0) - PageSize + 1
	TrapContext uintptr = Trampoline - PageSize
)

// KernelLayout describes the link-time section boundaries of the kernel
// image. On real hardware these come from linker symbols; here the bootstrap
// environment supplies them.
type KernelLayout struct {
	TextStart, TextEnd     uintptr
	RodataStart, RodataEnd uintptr
	DataStart, DataEnd     uintptr
	BssStart, BssEnd       uintptr // includes the boot stack
	KernelEnd              uintptr
}

// Strampoline is the physical load address of the trampoline code page. The
// linker places it at the very start of .text.
func (l *KernelLayout) Strampoline() uintptr {
	return l.TextStart
}

var layout = KernelLayout{
	TextStart:   0x8020_0000,
	TextEnd:     0x8020_8000,
	RodataStart: 0x8020_8000,
	RodataEnd:   0x8020_c000,
	DataStart:   0x8020_c000,
	DataEnd:     0x8021_0000,
	BssStart:    0x8021_0000,
	BssEnd:      0x8023_0000,
	KernelEnd:   0x8023_0000,
}

func Layout() *KernelLayout {
	return &layout
}

// Simulated satp register and translation cache of the single hart.
var (
	satp       uintptr
	tlbFlushes uint64
)

func SetSATP(token uintptr) {
	satp = token
}

func SATP() uintptr {
	return satp
}

func FlushTLB() {
	tlbFlushes++
}

func TLBFlushCount() uint64 {
	return tlbFlushes
}
