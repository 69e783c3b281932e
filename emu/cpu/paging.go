package cpu

/*
 * x86pc - Two-level page table walker (spec.md §4.3).
 *
 * Walk cost is paid only on a TLB miss. 4KB pages, with 4MB
 * superpages when CR4.PSE and the PDE's PS bit are both set. Sets
 * Accessed on every touched PDE/PTE and Dirty on PTEs (or the PDE
 * itself for a superpage) for writes.
 */

import (
	mem "github.com/rcornwell/x86pc/emu/memory"
)

// PageFault carries the #PF error code bits, computed from the exact
// access that missed (spec.md §4.3), not the one that triggered the
// walk.
type PageFault struct {
	Addr uint32 // CR2 value: the faulting linear address
	Code uint32
}

const (
	pfPresent uint32 = 1 << 0 // P: 0 = not-present, 1 = protection violation
	pfWrite   uint32 = 1 << 1 // W/R: 1 = write access
	pfUser    uint32 = 1 << 2 // U/S: 1 = user-mode access
	pfRsvd    uint32 = 1 << 3 // reserved bit set in a table entry
	pfInstr   uint32 = 1 << 4 // I/D: 1 = instruction fetch
)

const (
	pdeAccessed = 1 << 5
	pdeDirty    = 1 << 6
	pdePS       = 1 << 7
	pteAccessed = 1 << 5
	pteDirty    = 1 << 6
)

// translate resolves a linear address to a physical one, consulting
// the TLB first and walking the page tables on a miss. userMode and
// write describe the access being attempted; exec marks an
// instruction fetch. Returns (phys, nil) on success or (0, *PageFault)
// on a fault; the TLB is filled as a side effect of a successful walk.
func (c *CPUState) translate(linear uint32, write, userMode, exec bool) (uint32, *PageFault) {
	if c.cr[0]&cr0PG == 0 {
		return linear, nil
	}

	if phys, ok := c.tlb.lookup(linear, write, exec); ok {
		return phys, nil
	}

	pdeAddr := (c.cr[3] &^ 0xfff) + ((linear >> 22) & 0x3ff) * 4
	pde := mem.GetDword(pdeAddr)
	if pde&1 == 0 {
		return 0, &PageFault{Addr: linear, Code: faultCode(write, userMode, exec, false)}
	}
	pdeUser := pde&4 != 0
	pdeWrite := pde&2 != 0

	if pde&pdeAccessed == 0 {
		mem.PutDword(pdeAddr, pde|pdeAccessed)
	}

	if c.cr[4]&cr4PSE != 0 && pde&pdePS != 0 {
		if userMode && !pdeUser {
			return 0, &PageFault{Addr: linear, Code: faultCode(write, userMode, exec, true)}
		}
		if write && !pdeWrite {
			return 0, &PageFault{Addr: linear, Code: faultCode(write, userMode, exec, true)}
		}
		if write && pde&pdeDirty == 0 {
			pde = mem.GetDword(pdeAddr)
			mem.PutDword(pdeAddr, pde|pdeDirty)
		}
		phys := (pde & 0xffc00000) | (linear & 0x3fffff)
		c.tlb.insert(linear&^0xfff, phys&^0xfff, write && pdeWrite, true, pde&4 != 0 && c.cr[4]&cr4PGE != 0)
		return phys, nil
	}

	pteAddr := (pde &^ 0xfff) + ((linear >> 12) & 0x3ff) * 4
	pte := mem.GetDword(pteAddr)
	if pte&1 == 0 {
		return 0, &PageFault{Addr: linear, Code: faultCode(write, userMode, exec, false)}
	}
	pteUser := pdeUser && pte&4 != 0
	pteWrite := pdeWrite && pte&2 != 0

	if userMode && !pteUser {
		return 0, &PageFault{Addr: linear, Code: faultCode(write, userMode, exec, true)}
	}
	if write && !pteWrite {
		return 0, &PageFault{Addr: linear, Code: faultCode(write, userMode, exec, true)}
	}

	if pte&pteAccessed == 0 {
		mem.PutDword(pteAddr, pte|pteAccessed)
		pte |= pteAccessed
	}
	if write && pte&pteDirty == 0 {
		pte |= pteDirty
		mem.PutDword(pteAddr, pte)
	}

	global := pte&0x100 != 0 && c.cr[4]&cr4PGE != 0
	phys := (pte &^ 0xfff) | (linear & 0xfff)
	c.tlb.insert(linear&^0xfff, phys&^0xfff, write && pteWrite, true, global)
	return phys, nil
}

func faultCode(write, userMode, exec, present bool) uint32 {
	var code uint32
	if present {
		code |= pfPresent
	}
	if write {
		code |= pfWrite
	}
	if userMode {
		code |= pfUser
	}
	if exec {
		code |= pfInstr
	}
	return code
}

// invlpg flushes exactly the TLB entry covering addr.
func (c *CPUState) invlpg(addr uint32) {
	c.tlb.flushOne(addr)
}
