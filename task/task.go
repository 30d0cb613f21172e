package task

import (
	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/karst/memory_set"
	"github.com/ranmrdrakono/karst/up_cell"
)

// TaskInner is the mutable part of a task control block, guarded by the
// block's exclusive cell. Each task owns exactly one address space.
type TaskInner struct {
	MemorySet    *memory_set.MemorySet
	UserStackTop uintptr
	EntryPoint   uintptr
}

type TaskControlBlock struct {
	Pid   int
	cell  up_cell.Cell
	inner TaskInner
}

// ExclusiveInner borrows the task's mutable state; call the returned drop
// function to release the borrow.
func (t *TaskControlBlock) ExclusiveInner() (*TaskInner, func()) {
	t.cell.Borrow()
	return &t.inner, t.cell.Drop
}

var nextPid = 1

func allocPid() int {
	pid := nextPid
	nextPid++
	return pid
}

// NewTask builds a task from an executable image.
func NewTask(elfData []byte) *TaskControlBlock {
	ms, stackTop, entry := memory_set.FromELF(elfData)
	t := &TaskControlBlock{
		Pid: allocPid(),
		inner: TaskInner{
			MemorySet:    ms,
			UserStackTop: stackTop,
			EntryPoint:   entry,
		},
	}
	log.WithFields(log.Fields{
		"pid":   t.Pid,
		"entry": entry,
		"sp":    stackTop,
	}).Info("task created")
	return t
}

// Fork gives the child an independent duplicate of the parent's space.
func (t *TaskControlBlock) Fork() *TaskControlBlock {
	inner, drop := t.ExclusiveInner()
	defer drop()
	child := &TaskControlBlock{
		Pid: allocPid(),
		inner: TaskInner{
			MemorySet:    memory_set.FromExisted(inner.MemorySet),
			UserStackTop: inner.UserStackTop,
			EntryPoint:   inner.EntryPoint,
		},
	}
	log.WithFields(log.Fields{"pid": child.Pid, "parent": t.Pid}).Info("task forked")
	return child
}

// Reclaim tears the task's space down: data frames first, then the page
// table's own node frames.
func (t *TaskControlBlock) Reclaim() {
	inner, drop := t.ExclusiveInner()
	defer drop()
	inner.MemorySet.RecycleDataPages()
	inner.MemorySet.ReleaseTable()
	inner.MemorySet = nil
}

// Single-hart run context: at most one current task.
var current *TaskControlBlock

func Current() *TaskControlBlock {
	return current
}

func SetCurrent(t *TaskControlBlock) {
	current = t
}
