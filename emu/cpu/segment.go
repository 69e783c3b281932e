package cpu

/*
 * x86pc - Segmentation and protection (spec.md §4.2).
 *
 * Every memory reference is linear = seg.base + offset, gated by three
 * checks: segment present, offset within limit, access type permitted
 * by the cached access rights. Loading a segment register consults
 * GDT/LDT by index+TI, checks RPL vs CPL vs DPL, and refills the
 * cache atomically so it can never be observed stale.
 */

import (
	mem "github.com/rcornwell/x86pc/emu/memory"
)

// Exception models a CPU-raised fault/trap/abort, carrying the vector
// and (for the vectors that require one) an error code. Delivery goes
// through deliverException in interrupt.go.
type Exception struct {
	Vector    uint8
	HasCode   bool
	Code      uint16
	PageFault *PageFault // set only for vector 14
}

const (
	excDE = 0  // divide error
	excDB = 1  // debug
	excNMI = 2
	excBP  = 3 // breakpoint (INT3)
	excOF  = 4 // overflow (INTO)
	excBR  = 5 // BOUND range
	excUD  = 6 // invalid opcode
	excNM  = 7 // device not available (no FPU)
	excDF  = 8 // double fault
	excTS  = 10 // invalid TSS
	excNP  = 11 // segment not present
	excSS  = 12 // stack fault
	excGP  = 13 // general protection
	excPF  = 14 // page fault
)

func gpFault(selector uint16) *Exception {
	return &Exception{Vector: excGP, HasCode: true, Code: selector}
}

func ssFault(selector uint16) *Exception {
	return &Exception{Vector: excSS, HasCode: true, Code: selector}
}

func npFault(selector uint16) *Exception {
	return &Exception{Vector: excNP, HasCode: true, Code: selector}
}

// parseDescriptor decodes one 8-byte GDT/LDT entry, already split into
// its two constituent little-endian dwords, into a segCache.
func parseDescriptor(lo, hi uint32) segCache {
	limitLow := lo & 0xffff
	baseLow := (lo >> 16) & 0xffff
	baseMid := hi & 0xff
	access := uint8((hi >> 8) & 0xff)
	limitHigh := (hi >> 16) & 0xf
	flags := (hi >> 20) & 0xf
	baseHigh := (hi >> 24) & 0xff

	base := baseLow | baseMid<<16 | baseHigh<<24
	limit := limitHigh<<16 | limitLow
	if flags&0x8 != 0 { // G bit: limit is in 4KB units
		limit = (limit << 12) | 0xfff
	}

	return segCache{
		base:    base,
		limit:   limit,
		rights:  access,
		present: access&0x80 != 0,
		big:     flags&0x4 != 0,
	}
}

// readDescriptor fetches the raw descriptor at selector's index within
// table, returning ok=false if the index is beyond the table's limit.
func readDescriptor(table descTable, selector uint16) (segCache, bool) {
	index := uint32(selector) &^ 7
	if index+7 > table.limit {
		return segCache{}, false
	}
	addr := table.base + index
	lo := mem.GetDword(addr)
	hi := mem.GetDword(addr + 4)
	return parseDescriptor(lo, hi), true
}

func selectorRPL(selector uint16) uint8 { return uint8(selector & 3) }
func selectorTI(selector uint16) bool   { return selector&4 != 0 }

// descType reports type-related bits of an access-rights byte.
func descS(rights uint8) bool        { return rights&0x10 != 0 } // 1 = code/data, 0 = system
func descType(rights uint8) uint8    { return rights & 0xf }
func descDPL(rights uint8) uint8     { return (rights >> 5) & 3 }
func descConforming(rights uint8) bool {
	return descS(rights) && descType(rights)&0xc == 0xc
}
func descWritable(rights uint8) bool {
	return descS(rights) && descType(rights)&0xa == 0x2
}
func descExecutable(rights uint8) bool {
	return descS(rights) && descType(rights)&0x8 != 0
}

// ldtTable returns the descriptor table for an LDT-relative selector.
func (c *CPUState) ldtTable() descTable {
	return descTable{base: c.ldtr.base, limit: c.ldtr.limit}
}

func (c *CPUState) tableFor(selector uint16) descTable {
	if selectorTI(selector) {
		return c.ldtTable()
	}
	return c.gdtr
}

// loadSegment loads segIdx from selector, performing the standard
// privilege checks (spec.md §4.2) and atomically refilling the hidden
// cache. A null selector is permitted for DS/ES/FS/GS (the segment
// becomes unusable until reloaded) but never for CS or SS.
func (c *CPUState) loadSegment(segIdx int, selector uint16) *Exception {
	if selector&0xfffc == 0 {
		if segIdx == SegCS || segIdx == SegSS {
			return gpFault(selector)
		}
		c.seg[segIdx] = segCache{selector: selector}
		return nil
	}

	desc, ok := readDescriptor(c.tableFor(selector), selector)
	if !ok {
		return gpFault(selector)
	}
	if !descS(desc.rights) {
		return gpFault(selector)
	}

	rpl := selectorRPL(selector)
	switch segIdx {
	case SegSS:
		if !descWritable(desc.rights) {
			return gpFault(selector)
		}
		if rpl != c.cpl || descDPL(desc.rights) != c.cpl {
			return gpFault(selector)
		}
	case SegCS:
		if !descExecutable(desc.rights) {
			return gpFault(selector)
		}
		if !descConforming(desc.rights) && descDPL(desc.rights) != rpl {
			return gpFault(selector)
		}
		c.cpl = rpl
	default:
		if descExecutable(desc.rights) && !descConforming(desc.rights) {
			if descDPL(desc.rights) < maxu8(rpl, c.cpl) {
				return gpFault(selector)
			}
		} else if !descExecutable(desc.rights) {
			if descDPL(desc.rights) < maxu8(rpl, c.cpl) {
				return gpFault(selector)
			}
		}
	}
	if !desc.present {
		if segIdx == SegSS {
			return ssFault(selector)
		}
		return npFault(selector)
	}

	desc.selector = selector
	c.seg[segIdx] = desc
	return nil
}

func maxu8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// checkAccess verifies offset..offset+width-1 falls within seg's
// cached limit (spec.md §4.2/§8: "offset + access_width - 1 ≤
// segment.limit at every successful memory access").
func checkAccess(seg *segCache, offset uint32, width uint32) bool {
	if !seg.present {
		return false
	}
	if width == 0 {
		return offset <= seg.limit
	}
	end := offset + width - 1
	if end < offset { // wrapped past 0xFFFFFFFF
		return false
	}
	return end <= seg.limit
}

// linear computes seg.base+offset without a limit check; callers that
// need the check call checkAccess first and raise #GP/#SS themselves
// so they can report the right selector.
func (c *CPUState) linear(segIdx int, offset uint32) uint32 {
	return c.seg[segIdx].base + offset
}
