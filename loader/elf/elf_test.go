package elf

import (
	"bytes"
	"testing"

	ds "github.com/ranmrdrakono/karst/data_structures"
)

func TestParseRoundtrip(t *testing.T) {
	code := []byte{1, 2, 3, 4, 5}
	img := BuildImage(0x1000, []BuildSegment{
		{Vaddr: 0x1000, MemSize: 0x2000, Perm: ds.PermR | ds.PermX, Data: code},
		{Vaddr: 0x4000, MemSize: 0x1000, Perm: ds.PermR | ds.PermW, Data: []byte{9}},
	})
	parsed, err := Parse(img)
	if err != nil {
		t.Fatal("Expected parse to succeed, got:", err)
	}
	if parsed.Entry != 0x1000 {
		t.Error("Expected entry 0x1000, got:", parsed.Entry)
	}
	if len(parsed.Segments) != 2 {
		t.Fatal("Expected 2 segments, got:", len(parsed.Segments))
	}
	s0 := parsed.Segments[0]
	if s0.VStart != 0x1000 || s0.VEnd != 0x3000 {
		t.Error("Expected [0x1000,0x3000), got:", s0.VStart, s0.VEnd)
	}
	if s0.Perm != ds.PermR|ds.PermX {
		t.Error("Expected R|X, got:", s0.Perm)
	}
	if !bytes.Equal(s0.Data, code) {
		t.Error("Expected segment data roundtrip, got:", s0.Data)
	}
	s1 := parsed.Segments[1]
	if s1.Perm != ds.PermR|ds.PermW {
		t.Error("Expected R|W, got:", s1.Perm)
	}
}

func TestParseBadMagic(t *testing.T) {
	if _, err := Parse([]byte{0, 1, 2, 3, 4, 5, 6, 7}); err == nil {
		t.Error("Expected error for bad magic")
	}
	if _, err := Parse([]byte{0x7f}); err == nil {
		t.Error("Expected error for truncated image")
	}
	img := BuildImage(0x1000, nil)
	img[0] = 0x00
	if _, err := Parse(img); err == nil {
		t.Error("Expected error for corrupted magic")
	}
}

func TestParseShortContent(t *testing.T) {
	// file content shorter than the memory span stays legal: the tail is
	// zero-filled memory
	img := BuildImage(0x0, []BuildSegment{
		{Vaddr: 0x1000, MemSize: 0x3000, Perm: ds.PermR, Data: make([]byte, 100)},
	})
	parsed, err := Parse(img)
	if err != nil {
		t.Fatal("Expected parse to succeed, got:", err)
	}
	seg := parsed.Segments[0]
	if len(seg.Data) != 100 {
		t.Error("Expected 100 data bytes, got:", len(seg.Data))
	}
	if seg.VEnd-seg.VStart != 0x3000 {
		t.Error("Expected 0x3000 span, got:", seg.VEnd-seg.VStart)
	}
}
