package memory_set

import (
	"bytes"
	"testing"

	"github.com/ranmrdrakono/karst/arch"
	ds "github.com/ranmrdrakono/karst/data_structures"
	fp "github.com/ranmrdrakono/karst/frame_pool"
	loader "github.com/ranmrdrakono/karst/loader/elf"
)

func userImage(code []byte) []byte {
	return loader.BuildImage(0x1000, []loader.BuildSegment{
		{Vaddr: 0x1000, MemSize: 0x1000, Perm: ds.PermR | ds.PermX, Data: code},
	})
}

func pageBytes(t *testing.T, ms *MemorySet, vpn ds.VirtPageNum) []byte {
	t.Helper()
	entry, ok := ms.Translate(vpn)
	if !ok {
		t.Fatal("Expected translation for vpn", vpn)
	}
	return fp.BytesOf(entry.PPN())
}

func TestMmapTranslate(t *testing.T) {
	fp.Init()
	ms := NewBare()
	start := uintptr(0x1000_0000)
	end := start + 3*arch.PageSize

	if ret := ms.Mmap(start, end, 0x3); ret != 0 {
		t.Fatal("Expected mmap to succeed, got:", ret)
	}
	for vpn := ds.VirtAddr(start).Floor(); vpn < ds.VirtAddr(end).Ceil(); vpn++ {
		entry, ok := ms.Translate(vpn)
		if !ok {
			t.Fatal("Expected translation for vpn", vpn)
		}
		if !entry.Readable() || !entry.Writable() || !entry.User() {
			t.Error("Expected R|W|U entry, got flags:", entry.Flags())
		}
		if entry.Executable() {
			t.Error("Expected no X for prot 0x3, got flags:", entry.Flags())
		}
	}
}

func TestMunmapRemovesTranslations(t *testing.T) {
	fp.Init()
	ms := NewBare()
	start := uintptr(0x1000_0000)

	ms.Mmap(start, start+2*arch.PageSize, 0x1)
	ms.Mmap(start+2*arch.PageSize, start+3*arch.PageSize, 0x2)
	if ret := ms.Munmap(start, start+3*arch.PageSize); ret != 0 {
		t.Fatal("Expected munmap to succeed, got:", ret)
	}
	for vpn := ds.VirtAddr(start).Floor(); vpn < ds.VirtAddr(start+3*arch.PageSize).Ceil(); vpn++ {
		if _, ok := ms.Translate(vpn); ok {
			t.Error("Expected no translation after munmap for vpn", vpn)
		}
	}
	if ms.AreaCount() != 0 {
		t.Error("Expected empty areas to be dropped, got:", ms.AreaCount())
	}
}

func TestMmapOverlapRejected(t *testing.T) {
	fp.Init()
	ms := NewBare()
	start := uintptr(0x1000_0000)

	if ret := ms.Mmap(start, start+2*arch.PageSize, 0x3); ret != 0 {
		t.Fatal("Expected first mmap to succeed, got:", ret)
	}
	if ret := ms.Mmap(start+arch.PageSize, start+3*arch.PageSize, 0x3); ret != -1 {
		t.Fatal("Expected overlapping mmap to fail, got:", ret)
	}
	// the first mapping must be intact
	for vpn := ds.VirtAddr(start).Floor(); vpn < ds.VirtAddr(start+2*arch.PageSize).Ceil(); vpn++ {
		if _, ok := ms.Translate(vpn); !ok {
			t.Error("Expected original mapping to survive for vpn", vpn)
		}
	}
	if _, ok := ms.Translate(ds.VirtAddr(start + 2*arch.PageSize).Floor()); ok {
		t.Error("Expected no translation past the original mapping")
	}
}

func TestMunmapPartialCoverageRejected(t *testing.T) {
	fp.Init()
	ms := NewBare()
	start := uintptr(0x1000_0000)

	ms.Mmap(start, start+2*arch.PageSize, 0x3)
	// the area straddles the requested boundary: nothing may change
	if ret := ms.Munmap(start, start+arch.PageSize); ret != -1 {
		t.Fatal("Expected partial munmap to fail, got:", ret)
	}
	// a hole in the middle fails the coverage sum as well
	if ret := ms.Munmap(start, start+4*arch.PageSize); ret != -1 {
		t.Fatal("Expected munmap over a hole to fail, got:", ret)
	}
	for vpn := ds.VirtAddr(start).Floor(); vpn < ds.VirtAddr(start+2*arch.PageSize).Ceil(); vpn++ {
		if _, ok := ms.Translate(vpn); !ok {
			t.Error("Expected mapping to be untouched for vpn", vpn)
		}
	}
	if ms.AreaCount() != 1 {
		t.Error("Expected one surviving area, got:", ms.AreaCount())
	}
}

func TestFromELF(t *testing.T) {
	fp.Init()
	code := make([]byte, 100)
	for i := range code {
		code[i] = byte(i + 1)
	}
	ms, stackTop, entry := FromELF(userImage(code))

	if entry != 0x1000 {
		t.Error("Expected entry 0x1000, got:", entry)
	}
	// segment area, user stack, trap context
	if ms.AreaCount() != 3 {
		t.Error("Expected 3 areas, got:", ms.AreaCount())
	}

	segEntry, ok := ms.Translate(ds.VirtPageNum(1))
	if !ok {
		t.Fatal("Expected segment page to be mapped")
	}
	if !segEntry.Readable() || !segEntry.Executable() || !segEntry.User() {
		t.Error("Expected R|X|U segment, got flags:", segEntry.Flags())
	}
	if segEntry.Writable() {
		t.Error("Expected non-writable segment, got flags:", segEntry.Flags())
	}
	content := fp.BytesOf(segEntry.PPN())
	if !bytes.Equal(content[:100], code) {
		t.Error("Expected segment bytes to be loaded")
	}
	for i := 100; i < len(content); i++ {
		if content[i] != 0 {
			t.Fatal("Expected zero tail past file content, byte", i)
		}
	}

	// guard page between image and stack stays unmapped
	if _, ok := ms.Translate(ds.VirtPageNum(2)); ok {
		t.Error("Expected guard page to be unmapped")
	}
	wantTop := uintptr(0x3000) + arch.UserStackSize
	if stackTop != wantTop {
		t.Error("Expected stack top", wantTop, "got:", stackTop)
	}
	stackEntry, ok := ms.Translate(ds.VirtAddr(stackTop - 1).Floor())
	if !ok {
		t.Fatal("Expected stack to be mapped")
	}
	if !stackEntry.Readable() || !stackEntry.Writable() || !stackEntry.User() {
		t.Error("Expected R|W|U stack, got flags:", stackEntry.Flags())
	}

	trapEntry, ok := ms.Translate(ds.VirtAddr(arch.TrapContext).Floor())
	if !ok {
		t.Fatal("Expected trap context to be mapped")
	}
	if !trapEntry.Readable() || !trapEntry.Writable() || trapEntry.User() {
		t.Error("Expected R|W kernel-only trap context, got flags:", trapEntry.Flags())
	}

	trampEntry, ok := ms.Translate(ds.VirtAddr(arch.Trampoline).Floor())
	if !ok {
		t.Fatal("Expected trampoline to be mapped")
	}
	if !trampEntry.Readable() || !trampEntry.Executable() || trampEntry.Writable() {
		t.Error("Expected R|X trampoline, got flags:", trampEntry.Flags())
	}
}

func TestFromELFEmptySegment(t *testing.T) {
	fp.Init()
	code := []byte{1, 2, 3, 4}
	// a degenerate LOAD segment spanning no pages must not abort the load
	img := loader.BuildImage(0x1000, []loader.BuildSegment{
		{Vaddr: 0x1000, MemSize: 0x1000, Perm: ds.PermR | ds.PermX, Data: code},
		{Vaddr: 0x5000, MemSize: 0, Perm: ds.PermR},
	})
	ms, _, entry := FromELF(img)
	if entry != 0x1000 {
		t.Error("Expected entry 0x1000, got:", entry)
	}
	if _, ok := ms.Translate(ds.VirtPageNum(5)); ok {
		t.Error("Expected the empty segment to map nothing")
	}
	seg, ok := ms.Translate(ds.VirtPageNum(1))
	if !ok {
		t.Fatal("Expected the code page to be mapped")
	}
	if !bytes.Equal(fp.BytesOf(seg.PPN())[:4], code) {
		t.Error("Expected the code page to hold the image bytes")
	}
}

func TestFromExistedIndependentCopy(t *testing.T) {
	fp.Init()
	code := make([]byte, 100)
	for i := range code {
		code[i] = byte(i ^ 0x5a)
	}
	src, _, _ := FromELF(userImage(code))
	dst := FromExisted(src)

	if src.Fingerprint() != dst.Fingerprint() {
		t.Error("Expected identical contents right after duplication")
	}
	if !bytes.Equal(pageBytes(t, src, 1), pageBytes(t, dst, 1)) {
		t.Error("Expected byte-identical segment pages")
	}

	// mutating one space must never show up in the other
	pageBytes(t, src, 1)[0] = 0xee
	if src.Fingerprint() == dst.Fingerprint() {
		t.Error("Expected fingerprints to diverge after mutation")
	}
	if pageBytes(t, dst, 1)[0] == 0xee {
		t.Error("Expected duplicate to own independent frames")
	}
}

func TestNewKernelSectionPermissions(t *testing.T) {
	fp.Init()
	ks := NewKernel()
	l := arch.Layout()

	midText := ds.VirtAddr((l.TextStart + l.TextEnd) / 2).Floor()
	if e, ok := ks.Translate(midText); !ok || e.Writable() || !e.Executable() {
		t.Error("Expected non-writable executable text")
	}
	midRodata := ds.VirtAddr((l.RodataStart + l.RodataEnd) / 2).Floor()
	if e, ok := ks.Translate(midRodata); !ok || e.Writable() {
		t.Error("Expected non-writable rodata")
	}
	midData := ds.VirtAddr((l.DataStart + l.DataEnd) / 2).Floor()
	if e, ok := ks.Translate(midData); !ok || e.Executable() || !e.Writable() {
		t.Error("Expected writable non-executable data")
	}

	// identity mapping: vpn equals ppn
	if e, ok := ks.Translate(midText); !ok || uintptr(e.PPN()) != uintptr(midText) {
		t.Error("Expected identity translation for kernel text")
	}
}

func TestRemoveAreaWithStartVPN(t *testing.T) {
	fp.Init()
	ms := NewBare()
	start := ds.VirtAddr(0x2000_0000)
	ms.InsertFramedArea(start, start+ds.VirtAddr(2*arch.PageSize), ds.PermR|ds.PermW)

	ms.RemoveAreaWithStartVPN(ds.VirtPageNum(0x123456)) // no such area: no-op
	if ms.AreaCount() != 1 {
		t.Fatal("Expected area to survive a mismatched removal")
	}
	ms.RemoveAreaWithStartVPN(start.Floor())
	if ms.AreaCount() != 0 {
		t.Error("Expected area to be removed, got:", ms.AreaCount())
	}
	if _, ok := ms.Translate(start.Floor()); ok {
		t.Error("Expected translation to be gone after removal")
	}
}

func TestRecycleDataPages(t *testing.T) {
	fp.Init()
	before := fp.Remaining()
	ms := NewBare()
	ms.InsertFramedArea(0x3000_0000, 0x3000_0000+ds.VirtAddr(4*arch.PageSize), ds.PermR|ds.PermW)
	ms.RecycleDataPages()
	ms.ReleaseTable()
	if got := fp.Remaining(); got != before {
		t.Error("Expected all frames back after teardown, remaining:", got, "want:", before)
	}
}

func TestActivate(t *testing.T) {
	fp.Init()
	ms := NewBare()
	ms.mapTrampoline()
	flushes := arch.TLBFlushCount()
	ms.Activate()
	if arch.SATP() != ms.Token() {
		t.Error("Expected satp to hold this space's token")
	}
	if arch.TLBFlushCount() != flushes+1 {
		t.Error("Expected a translation cache flush on activate")
	}
}
