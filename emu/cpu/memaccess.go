package cpu

/*
 * x86pc - Segmentation + paging + TLB memory access path (spec.md
 * §4.1-§4.4), the funnel every guest load/store/fetch goes through.
 *
 * Multi-byte accesses are translated one byte at a time so a page
 * boundary crossing is exactly two independent TLB lookups (spec.md
 * §8 "Boundary behaviors": a #PF on either half aborts the whole
 * instruction with EIP unchanged). Writes translate every byte first
 * and only touch memory once every address is known good, so a fault
 * never leaves a partial store behind.
 */

import (
	mem "github.com/rcornwell/x86pc/emu/memory"
)

func (c *CPUState) userMode() bool { return c.cpl == 3 }

// segFault builds the right exception for a failed limit/present
// check on segIdx: #SS for the stack segment, #GP otherwise.
func (c *CPUState) segFault(segIdx int) *Exception {
	sel := c.seg[segIdx].selector
	if segIdx == SegSS {
		return ssFault(sel)
	}
	return gpFault(sel)
}

func (c *CPUState) translateByte(segIdx int, offset uint32, write, exec bool) (uint32, *Exception) {
	seg := &c.seg[segIdx]
	if !checkAccess(seg, offset, 1) {
		return 0, c.segFault(segIdx)
	}
	linear := c.linear(segIdx, offset)
	phys, pf := c.translate(linear, write, c.userMode(), exec)
	if pf != nil {
		return 0, &Exception{Vector: excPF, HasCode: true, Code: uint16(pf.Code), PageFault: pf}
	}
	return phys, nil
}

// ReadByte reads width=1 byte at seg:offset.
func (c *CPUState) ReadByte(segIdx int, offset uint32) (uint8, *Exception) {
	phys, ex := c.translateByte(segIdx, offset, false, false)
	if ex != nil {
		return 0, ex
	}
	return mem.GetByte(phys), nil
}

// ReadWord reads a little-endian 16-bit value at seg:offset.
func (c *CPUState) ReadWord(segIdx int, offset uint32) (uint16, *Exception) {
	lo, ex := c.ReadByte(segIdx, offset)
	if ex != nil {
		return 0, ex
	}
	hi, ex := c.ReadByte(segIdx, offset+1)
	if ex != nil {
		return 0, ex
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// ReadDword reads a little-endian 32-bit value at seg:offset.
func (c *CPUState) ReadDword(segIdx int, offset uint32) (uint32, *Exception) {
	lo, ex := c.ReadWord(segIdx, offset)
	if ex != nil {
		return 0, ex
	}
	hi, ex := c.ReadWord(segIdx, offset+2)
	if ex != nil {
		return 0, ex
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// WriteByte writes one byte at seg:offset.
func (c *CPUState) WriteByte(segIdx int, offset uint32, val uint8) *Exception {
	phys, ex := c.translateByte(segIdx, offset, true, false)
	if ex != nil {
		return ex
	}
	mem.PutByte(phys, val)
	return nil
}

// WriteWord writes a little-endian 16-bit value, translating both
// bytes before writing either (no partial store on a straddling
// fault).
func (c *CPUState) WriteWord(segIdx int, offset uint32, val uint16) *Exception {
	p0, ex := c.translateByte(segIdx, offset, true, false)
	if ex != nil {
		return ex
	}
	p1, ex := c.translateByte(segIdx, offset+1, true, false)
	if ex != nil {
		return ex
	}
	mem.PutByte(p0, uint8(val))
	mem.PutByte(p1, uint8(val>>8))
	return nil
}

// WriteDword writes a little-endian 32-bit value, translating all
// four bytes before writing any.
func (c *CPUState) WriteDword(segIdx int, offset uint32, val uint32) *Exception {
	var phys [4]uint32
	for i := uint32(0); i < 4; i++ {
		p, ex := c.translateByte(segIdx, offset+i, true, false)
		if ex != nil {
			return ex
		}
		phys[i] = p
	}
	for i := uint32(0); i < 4; i++ {
		mem.PutByte(phys[i], uint8(val>>(8*i)))
	}
	return nil
}

// FetchByte reads one instruction byte through CS with exec
// permission, used by the decoder's fetch loop.
func (c *CPUState) FetchByte(offset uint32) (uint8, *Exception) {
	phys, ex := c.translateByte(SegCS, offset, false, true)
	if ex != nil {
		return 0, ex
	}
	return mem.GetByte(phys), nil
}
