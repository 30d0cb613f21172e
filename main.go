package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/karst/arch"
	ds "github.com/ranmrdrakono/karst/data_structures"
	fp "github.com/ranmrdrakono/karst/frame_pool"
	loader "github.com/ranmrdrakono/karst/loader/elf"
	"github.com/ranmrdrakono/karst/memory_set"
	"github.com/ranmrdrakono/karst/task"
)

func demoImage() []byte {
	code := make([]byte, 100)
	for i := range code {
		code[i] = byte(i)
	}
	return loader.BuildImage(0x1000, []loader.BuildSegment{
		{Vaddr: 0x1000, MemSize: 0x1000, Perm: ds.PermR | ds.PermX, Data: code},
	})
}

func run() {
	fp.Init()

	ks, drop := memory_set.KernelExclusive()
	ks.Activate()
	drop()
	memory_set.RemapTest()

	t := task.NewTask(demoImage())
	task.SetCurrent(t)

	inner, dropInner := t.ExclusiveInner()
	inner.MemorySet.Activate()
	fmt.Printf("user space token %#x, entry %#x, sp %#x\n",
		inner.MemorySet.Token(), inner.EntryPoint, inner.UserStackTop)
	dropInner()

	if ret := task.SysMmap(0x1000_0000, 2*arch.PageSize, 0x3); ret != 0 {
		log.WithFields(log.Fields{"ret": ret}).Fatal("mmap failed")
	}
	if ret := task.SysMunmap(0x1000_0000, 2*arch.PageSize); ret != 0 {
		log.WithFields(log.Fields{"ret": ret}).Fatal("munmap failed")
	}

	child := t.Fork()
	ci, dropChild := child.ExclusiveInner()
	pi, dropParent := t.ExclusiveInner()
	fmt.Printf("parent %#x child %#x\n", pi.MemorySet.Fingerprint(), ci.MemorySet.Fingerprint())
	dropParent()
	dropChild()

	child.Reclaim()
	task.SetCurrent(nil)
	t.Reclaim()
	fmt.Printf("frames remaining: %d\n", fp.Remaining())
}

func main() {
	log.SetLevel(log.InfoLevel)
	run()
}
