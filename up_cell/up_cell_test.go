package up_cell

import (
	"testing"
)

func TestBorrowDrop(t *testing.T) {
	var c Cell
	c.Borrow()
	c.Drop()
	// the cell must be reusable after the borrow is dropped
	c.Borrow()
	c.Drop()
}

func TestIndependentCells(t *testing.T) {
	var a, b Cell
	a.Borrow()
	b.Borrow()
	b.Drop()
	a.Drop()
}
