package up_cell

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Cell is a runtime-checked exclusive-access guard for single-hart data.
// It is not a lock: a second live borrow is a bug in the caller, reported
// fatally instead of blocking. The model targets one hardware thread with
// external preemption only.
type Cell struct {
	borrowed int32
}

// Borrow takes the single exclusive borrow.
func (c *Cell) Borrow() {
	if !atomic.CompareAndSwapInt32(&c.borrowed, 0, 1) {
		log.Fatal("exclusive cell already borrowed")
	}
}

// Drop returns the borrow taken by Borrow.
func (c *Cell) Drop() {
	if !atomic.CompareAndSwapInt32(&c.borrowed, 1, 0) {
		log.Fatal("drop of unborrowed exclusive cell")
	}
}
