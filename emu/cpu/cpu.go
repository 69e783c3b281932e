package cpu

/*
 * x86pc - Main fetch/decode/execute loop (spec.md §4.5).
 *
 * Single-step: sample pending events; if none pre-empt, fetch one
 * instruction through the exec-permitted TLB path; decode prefixes
 * (operand-size, address-size, segment override, LOCK - ignored,
 * REP/REPZ/REPNZ); decode the opcode (one- or two-byte 0F-prefixed);
 * decode ModR/M and SIB; execute; advance EIP.
 *
 * Faults raised mid-decode unwind through panic/recover up to Step,
 * the same "one escape hatch back to the dispatcher" shape as the
 * teacher's table of opcode handlers returning an interrupt code
 * (createTable/execute in cpu.go) rather than threading an error
 * value through every helper.
 */

import (
	"log/slog"
)

// New creates a CPU in its post-reset state.
func New(generation int, fpuPresent bool, io ioPorts) *CPUState {
	c := &CPUState{generation: generation, io: io}
	c.fpu.present = fpuPresent
	c.reset()
	return c
}

// reset re-enters at the BIOS reset vector F000:FFF0 with all
// segment/control state at its power-on value (spec.md §5
// "Cancellation": "...re-enters at the reset vector").
func (c *CPUState) reset() {
	c.regs = [8]uint32{}
	c.eip = 0xfff0
	c.eflags = 0x2
	c.lazy = flagTriple{op: flagOpNone}

	c.seg[SegCS] = segCache{selector: 0xf000, base: 0xffff0000, limit: 0xffff, present: true, rights: 0x9b}
	for _, s := range []int{SegDS, SegES, SegFS, SegGS, SegSS} {
		c.seg[s] = segCache{selector: 0, base: 0, limit: 0xffff, present: true, rights: 0x93}
	}

	c.cr = [5]uint32{}
	c.cr[0] = 0x60000010
	c.dr = [8]uint32{}
	c.gdtr = descTable{}
	c.idtr = descTable{base: 0, limit: 0x3ff}
	c.ldtr = segCache{}
	c.tr = segCache{}
	c.cpl = 0
	c.tlb.flushAll()
	c.pending = 0
	c.halted = false
	c.deliveryDepth = 0
}

// raiseUD dedups the "unimplemented opcode" log line and raises #UD
// to the guest (spec.md §7 item 4: "log once per opcode").
func (c *CPUState) raiseUD(opcode uint8) {
	if _, already := c.udSeen.LoadOrStore(opcode, true); !already {
		slog.Warn("unimplemented opcode, raising #UD", slog.String("opcode", hexByte(opcode)))
	}
	panic(&Exception{Vector: excUD})
}

func hexByte(b uint8) string {
	const digits = "0123456789abcdef"
	return "0x" + string(digits[b>>4]) + string(digits[b&0xf])
}

// decodeState is the per-instruction decode scratch, mirroring the
// teacher's stepInfo but shaped for x86's prefix/ModRM/SIB decode
// instead of S/370's fixed instruction formats.
type decodeState struct {
	opcode       uint8
	twoByte      bool
	opSize32     bool
	addrSize32   bool
	segOver      int // -1 if none
	rep          uint8
	modrmRead    bool
	mod, reg, rm uint8
	isRegRM      bool
	memOffset    uint32
	memSeg       int
	startEIP     uint32 // EIP before any prefix byte, for REP re-entry
}

// Step executes exactly one guest instruction, or processes a single
// pending event in its place. pic supplies the external-interrupt
// acknowledge contract.
func (c *CPUState) Step(pic interrupter) {
	defer func() {
		if r := recover(); r != nil {
			if ex, ok := r.(*Exception); ok {
				// Restore EIP to the start of the instruction that
				// faulted: fetch8/16/32 may have advanced c.eip deep
				// into the instruction's bytes before the fault was
				// raised, and the pushed return address must point to
				// the start so a handler's fix-and-retry lands back on
				// the same instruction (spec.md §8).
				c.eip = c.instrEIP
				c.deliverException(ex)
				return
			}
			panic(r)
		}
	}()

	if c.checkPendingEvents(pic) {
		return
	}
	if c.halted {
		return
	}

	c.instrEIP = c.eip
	ds := &decodeState{segOver: -1, opSize32: c.seg[SegCS].big, addrSize32: c.seg[SegCS].big, startEIP: c.eip}

	for {
		b := c.fetch8(ds)
		switch b {
		case 0x66:
			ds.opSize32 = !ds.opSize32
			continue
		case 0x67:
			ds.addrSize32 = !ds.addrSize32
			continue
		case 0x26:
			ds.segOver = SegES
			continue
		case 0x2e:
			ds.segOver = SegCS
			continue
		case 0x36:
			ds.segOver = SegSS
			continue
		case 0x3e:
			ds.segOver = SegDS
			continue
		case 0x64:
			ds.segOver = SegFS
			continue
		case 0x65:
			ds.segOver = SegGS
			continue
		case 0xf0:
			continue // LOCK: ignored (spec.md §4.5)
		case 0xf2:
			ds.rep = 2
			continue
		case 0xf3:
			ds.rep = 1
			continue
		case 0x0f:
			ds.twoByte = true
			b2 := c.fetch8(ds)
			ds.opcode = b2
			c.dispatchTwoByte(ds)
			return
		}
		ds.opcode = b
		break
	}
	c.dispatchOneByte(ds)
}

// fetch8 reads the next instruction byte at EIP and advances it,
// panicking with the *Exception on a fault so the decode loop doesn't
// need to thread an error return through every prefix/opcode step.
func (c *CPUState) fetch8(ds *decodeState) uint8 {
	v, ex := c.FetchByte(c.eip)
	if ex != nil {
		panic(ex)
	}
	c.eip++
	return v
}

func (c *CPUState) fetch16(ds *decodeState) uint16 {
	lo := c.fetch8(ds)
	hi := c.fetch8(ds)
	return uint16(lo) | uint16(hi)<<8
}

func (c *CPUState) fetch32(ds *decodeState) uint32 {
	lo := c.fetch16(ds)
	hi := c.fetch16(ds)
	return uint32(lo) | uint32(hi)<<16
}

// fetchImmZ reads an operand-size-wide immediate (16 or 32 bits).
func (c *CPUState) fetchImmZ(ds *decodeState) uint32 {
	if ds.opSize32 {
		return c.fetch32(ds)
	}
	return uint32(c.fetch16(ds))
}

// effSeg resolves the segment a memory operand is addressed through,
// honoring any prefix override, else the instruction's default
// (DS, or SS for rm encodings that default to [EBP]/[ESP]-based).
func (ds *decodeState) effSeg(def int) int {
	if ds.segOver != -1 {
		return ds.segOver
	}
	return def
}

// decodeModRM decodes the ModR/M byte (and SIB/displacement if
// memory-addressed), filling ds.mod/reg/rm and, for memory operands,
// ds.memOffset/ds.memSeg (spec.md §4.5).
func (c *CPUState) decodeModRM(ds *decodeState) {
	m := c.fetch8(ds)
	ds.mod = m >> 6
	ds.reg = (m >> 3) & 7
	ds.rm = m & 7
	ds.modrmRead = true

	if ds.mod == 3 {
		ds.isRegRM = true
		return
	}
	ds.isRegRM = false

	if !ds.addrSize32 {
		ds.memOffset, ds.memSeg = c.decodeModRM16(ds)
		return
	}

	var base, idx, scale uint32
	haveSIB := false
	rm := ds.rm
	if rm == 4 {
		sib := c.fetch8(ds)
		scaleBits := sib >> 6
		idxReg := (sib >> 3) & 7
		baseReg := sib & 7
		scale = 1 << scaleBits
		if idxReg != 4 {
			idx = c.regs[idxReg] * scale
		}
		haveSIB = true
		if baseReg == 5 && ds.mod == 0 {
			base = c.fetch32(ds)
		} else {
			base = c.regs[baseReg]
		}
		rm = baseReg
	} else if rm == 5 && ds.mod == 0 {
		base = c.fetch32(ds)
		ds.memOffset = base + idx
		ds.memSeg = ds.effSeg(SegDS)
		return
	} else {
		base = c.regs[rm]
	}

	var disp uint32
	switch ds.mod {
	case 1:
		disp = uint32(int32(int8(c.fetch8(ds))))
	case 2:
		disp = c.fetch32(ds)
	}

	defSeg := SegDS
	if (haveSIB && (rm == 4 || (rm == 5 && ds.mod != 0))) || (!haveSIB && rm == 5) {
		defSeg = SegSS
	}
	ds.memOffset = base + idx + disp
	ds.memSeg = ds.effSeg(defSeg)
}

// decodeModRM16 implements the 16-bit effective-address table (BX+SI
// etc.) for address-size-16 instructions (spec.md §4.5).
func (c *CPUState) decodeModRM16(ds *decodeState) (uint32, int) {
	var base uint32
	defSeg := SegDS
	switch ds.rm {
	case 0:
		base = c.regs[RegEBX] + c.regs[RegESI]
	case 1:
		base = c.regs[RegEBX] + c.regs[RegEDI]
	case 2:
		base = c.regs[RegEBP] + c.regs[RegESI]
		defSeg = SegSS
	case 3:
		base = c.regs[RegEBP] + c.regs[RegEDI]
		defSeg = SegSS
	case 4:
		base = c.regs[RegESI]
	case 5:
		base = c.regs[RegEDI]
	case 6:
		if ds.mod == 0 {
			base = uint32(c.fetch16(ds))
		} else {
			base = c.regs[RegEBP]
			defSeg = SegSS
		}
	case 7:
		base = c.regs[RegEBX]
	}
	var disp uint32
	switch ds.mod {
	case 1:
		disp = uint32(int32(int8(c.fetch8(ds))))
	case 2:
		disp = uint32(int32(int16(c.fetch16(ds))))
	}
	return (base + disp) & 0xffff, ds.effSeg(defSeg)
}

// rmRead8/16/32 and rmWrite8/16/32 fetch or store the ModR/M r/m
// operand, whether register- or memory-addressed.
func (c *CPUState) rmRead8(ds *decodeState) uint8 {
	if ds.isRegRM {
		return c.readReg8(ds.rm)
	}
	v, ex := c.ReadByte(ds.memSeg, ds.memOffset)
	if ex != nil {
		panic(ex)
	}
	return v
}

func (c *CPUState) rmWrite8(ds *decodeState, v uint8) {
	if ds.isRegRM {
		c.writeReg8(ds.rm, v)
		return
	}
	if ex := c.WriteByte(ds.memSeg, ds.memOffset, v); ex != nil {
		panic(ex)
	}
}

func (c *CPUState) rmRead16(ds *decodeState) uint16 {
	if ds.isRegRM {
		return uint16(c.regs[ds.rm])
	}
	v, ex := c.ReadWord(ds.memSeg, ds.memOffset)
	if ex != nil {
		panic(ex)
	}
	return v
}

func (c *CPUState) rmWrite16(ds *decodeState, v uint16) {
	if ds.isRegRM {
		c.regs[ds.rm] = (c.regs[ds.rm] &^ 0xffff) | uint32(v)
		return
	}
	if ex := c.WriteWord(ds.memSeg, ds.memOffset, v); ex != nil {
		panic(ex)
	}
}

func (c *CPUState) rmRead32(ds *decodeState) uint32 {
	if ds.isRegRM {
		return c.regs[ds.rm]
	}
	v, ex := c.ReadDword(ds.memSeg, ds.memOffset)
	if ex != nil {
		panic(ex)
	}
	return v
}

func (c *CPUState) rmWrite32(ds *decodeState, v uint32) {
	if ds.isRegRM {
		c.regs[ds.rm] = v
		return
	}
	if ex := c.WriteDword(ds.memSeg, ds.memOffset, v); ex != nil {
		panic(ex)
	}
}

// rmReadZ/rmWriteZ pick the 16- or 32-bit accessor per ds.opSize32.
func (c *CPUState) rmReadZ(ds *decodeState) uint32 {
	if ds.opSize32 {
		return c.rmRead32(ds)
	}
	return uint32(c.rmRead16(ds))
}

func (c *CPUState) rmWriteZ(ds *decodeState, v uint32) {
	if ds.opSize32 {
		c.rmWrite32(ds, v)
		return
	}
	c.rmWrite16(ds, uint16(v))
}

// readReg8/writeReg8 implement AL/AH/CL/CH... aliasing over the
// 32-bit register file (spec.md §3).
func (c *CPUState) readReg8(r uint8) uint8 {
	if r < 4 {
		return uint8(c.regs[r])
	}
	return uint8(c.regs[r-4] >> 8)
}

func (c *CPUState) writeReg8(r uint8, v uint8) {
	if r < 4 {
		c.regs[r] = (c.regs[r] &^ 0xff) | uint32(v)
		return
	}
	c.regs[r-4] = (c.regs[r-4] &^ 0xff00) | uint32(v)<<8
}

func (c *CPUState) regReadZ(ds *decodeState) uint32 {
	if ds.opSize32 {
		return c.regs[ds.reg]
	}
	return uint32(uint16(c.regs[ds.reg]))
}

func (c *CPUState) regWriteZ(ds *decodeState, v uint32) {
	if ds.opSize32 {
		c.regs[ds.reg] = v
		return
	}
	c.regs[ds.reg] = (c.regs[ds.reg] &^ 0xffff) | (v & 0xffff)
}

// IORead/IOWrite expose port I/O to callers without requiring them to
// import cpu's internals.
func (c *CPUState) IORead(port uint16) uint8      { return c.io.In(port) }
func (c *CPUState) IOWrite(port uint16, v uint8)  { c.io.Out(port, v) }

// Halt marks the CPU halted (HLT); Step becomes a no-op until an
// unmasked interrupt or NMI clears it via checkPendingEvents.
func (c *CPUState) Halt() { c.halted = true }

// Halted reports whether the CPU is in the HLT-wait state, so the
// core loop can still advance the event scheduler (spec.md §4.5:
// "implementations may sleep but must remain responsive to device
// IRQs").
func (c *CPUState) Halted() bool { return c.halted }

// Generation reports the configured CPU generation (3/4/5), used to
// gate optional opcodes (spec.md §6, §9 open question).
func (c *CPUState) Generation() int { return c.generation }

// RaiseNMI/RaiseReset set pending-event bits from outside the
// interpreter (device- or host-collaborator-triggered).
func (c *CPUState) RaiseNMI()   { c.pending |= pendingNMI }
func (c *CPUState) RaiseReset() { c.pending |= pendingReset }

// EIP/SetEIP and Reg/SetReg/CR expose state to the debug console and
// tests without making every field exported.
func (c *CPUState) EIP() uint32            { return c.eip }
func (c *CPUState) SetEIP(v uint32)        { c.eip = v }
func (c *CPUState) Reg(i int) uint32       { return c.regs[i] }
func (c *CPUState) SetReg(i int, v uint32) { c.regs[i] = v }
func (c *CPUState) CR(i int) uint32        { return c.cr[i] }

// SegSelector returns the visible 16-bit selector loaded in segment
// register i (SegES..SegGS), for the debug console's register dump.
func (c *CPUState) SegSelector(i int) uint16 { return c.seg[i].selector }

// SegBase returns the segment's cached linear base, useful when a
// selector alone does not show where a real-mode or descriptor-based
// access actually lands.
func (c *CPUState) SegBase(i int) uint32 { return c.seg[i].base }
