package cpu

/*
 * x86pc - Software TLB.
 *
 * A small direct-mapped cache keyed by linear page number, storing the
 * physical page address plus three permission bits (spec.md §4.4).
 * The cache stores an offset into guest RAM, never a raw pointer
 * (spec.md §9 Design Notes), so it survives unchanged across Go's
 * memory layout.
 */

const (
	tlbBits = 8
	tlbSize = 1 << tlbBits
	tlbMask = tlbSize - 1
)

type tlbEntry struct {
	valid    bool
	linear   uint32 // tag: full linear page number (bits 31:12)
	phys     uint32 // physical page base (bits 31:12, shifted back on use)
	readable bool
	writable bool
	execable bool
	global   bool
}

type tlbT struct {
	entries [tlbSize]tlbEntry
}

func tlbIndex(linearPage uint32) uint32 {
	return linearPage & tlbMask
}

// lookup returns the physical address for linear if a valid entry
// with the requested permission exists. The hot path from spec.md
// §4.4: entry = tlb[linear>>12 & mask]; check tag; check permission.
func (t *tlbT) lookup(linear uint32, write, exec bool) (uint32, bool) {
	page := linear >> 12
	e := &t.entries[tlbIndex(page)]
	if !e.valid || e.linear != page {
		return 0, false
	}
	if write && !e.writable {
		return 0, false
	}
	if exec && !e.execable {
		return 0, false
	}
	if !write && !exec && !e.readable {
		return 0, false
	}
	return e.phys<<12 | (linear & 0xfff), true
}

// insert installs a translation. Per spec.md §4.4: read bit always
// set, write bit only if the walk confirmed the dirty bit was already
// set in the guest PTE, exec bit per current-mode executability.
func (t *tlbT) insert(linear, phys uint32, writable, execable, global bool) {
	page := linear >> 12
	t.entries[tlbIndex(page)] = tlbEntry{
		valid:    true,
		linear:   page,
		phys:     phys >> 12,
		readable: true,
		writable: writable,
		execable: execable,
		global:   global,
	}
}

// flushAll drops every entry; used on reset, on every CR0 or CR4
// write, and on a CR3 write while CR4.PGE is clear (spec.md §4.3).
func (t *tlbT) flushAll() {
	for i := range t.entries {
		t.entries[i].valid = false
	}
}

// flushNonGlobal drops every entry except those tagged global; used
// on a CR3 reload when CR4.PGE is set (spec.md §4.3: "Global pages
// survive a CR3 reload").
func (t *tlbT) flushNonGlobal() {
	for i := range t.entries {
		if !t.entries[i].global {
			t.entries[i].valid = false
		}
	}
}

// flushOne drops exactly the entry covering linear, for INVLPG
// (spec.md §4.3: "INVLPG flushes exactly one entry").
func (t *tlbT) flushOne(linear uint32) {
	page := linear >> 12
	e := &t.entries[tlbIndex(page)]
	if e.valid && e.linear == page {
		e.valid = false
	}
}
