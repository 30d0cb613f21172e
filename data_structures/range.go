package data_structures

import (
	log "github.com/sirupsen/logrus"
)

// VPNRange is a half-open interval [Start, End) of virtual page numbers.
type VPNRange struct {
	Start, End VirtPageNum
}

func NewVPNRange(start, end VirtPageNum) VPNRange {
	if start > end {
		log.WithFields(log.Fields{"start": start, "end": end}).Warning("VPN range with swapped bounds")
		start, end = end, start
	}
	return VPNRange{Start: start, End: end}
}

func (r VPNRange) Length() uintptr {
	return uintptr(r.End) - uintptr(r.Start)
}

func (r VPNRange) IsEmpty() bool {
	return r.End <= r.Start
}

func (r VPNRange) Contains(vpn VirtPageNum) bool {
	return r.Start <= vpn && vpn < r.End
}

// Intersects reports whether a non-empty r overlaps [start, end).
func (r VPNRange) Intersects(start, end VirtPageNum) bool {
	return !r.IsEmpty() && start < r.End && end > r.Start
}

// ContainedIn reports whether r lies entirely inside [start, end).
func (r VPNRange) ContainedIn(start, end VirtPageNum) bool {
	return r.Start >= start && r.End <= end
}
