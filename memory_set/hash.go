package memory_set

import (
	xxhash "github.com/OneOfOne/xxhash"

	fp "github.com/ranmrdrakono/karst/frame_pool"
)

const fingerprint_salt = uint64(0x9ae16a3b2f90404f)

// Fingerprint chains a salted checksum over the contents of every framed
// page in area order. Two spaces with identical mapped contents hash the
// same; identity-mapped kernel sections carry no pool-backed bytes and are
// skipped.
func (ms *MemorySet) Fingerprint() uint64 {
	h := fingerprint_salt
	for _, area := range ms.areas {
		if area.mapType != MapFramed {
			continue
		}
		for vpn := area.rng.Start; vpn < area.rng.End; vpn++ {
			entry, ok := ms.Translate(vpn)
			if !ok {
				continue
			}
			h = xxhash.Checksum64S(fp.BytesOf(entry.PPN()), h)
		}
	}
	return h
}
