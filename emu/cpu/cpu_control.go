package cpu

/*
 * x86pc - Control flow, flag-bit, I/O-port, and interrupt-trigger
 * opcodes (spec.md §4.5 near/far jumps and calls, §4.7 software INT
 * and IRET, §6 port I/O).
 */

// evalCond evaluates one of the sixteen x86 condition codes against
// the materialized EFLAGS.
func (c *CPUState) evalCond(cc uint8) bool {
	f := c.Eflags()
	cf := f&flagCF != 0
	zf := f&flagZF != 0
	sf := f&flagSF != 0
	of := f&flagOF != 0
	pf := f&flagPF != 0
	switch cc {
	case 0:
		return of
	case 1:
		return !of
	case 2:
		return cf
	case 3:
		return !cf
	case 4:
		return zf
	case 5:
		return !zf
	case 6:
		return cf || zf
	case 7:
		return !cf && !zf
	case 8:
		return sf
	case 9:
		return !sf
	case 10:
		return pf
	case 11:
		return !pf
	case 12:
		return sf != of
	case 13:
		return sf == of
	case 14:
		return zf || sf != of
	case 15:
		return !zf && sf == of
	}
	return false
}

func (c *CPUState) execJccShort(ds *decodeState) {
	cc := ds.opcode - 0x70
	rel := int32(int8(c.fetch8(ds)))
	if c.evalCond(cc) {
		c.eip = uint32(int32(c.eip) + rel)
	}
}

func (c *CPUState) execJmpCallRel(ds *decodeState) {
	switch ds.opcode {
	case 0xEB: // JMP rel8
		rel := int32(int8(c.fetch8(ds)))
		c.eip = uint32(int32(c.eip) + rel)
	case 0xE9: // JMP relZ
		rel := c.fetchSignedImmZ(ds)
		c.eip = uint32(int32(c.eip) + rel)
	case 0xE8: // CALL relZ
		rel := c.fetchSignedImmZ(ds)
		c.pushZ(ds, c.eip)
		c.eip = uint32(int32(c.eip) + rel)
	}
}

func (c *CPUState) fetchSignedImmZ(ds *decodeState) int32 {
	if ds.opSize32 {
		return int32(c.fetch32(ds))
	}
	return int32(int16(c.fetch16(ds)))
}

// execFarJmpCall implements the direct far JMP (0xEA) and far CALL
// (0x9A): scenario #2 of spec.md §8 ("protected-mode transition ...
// far-jump ... 32-bit CS") exercises exactly this opcode.
func (c *CPUState) execFarJmpCall(ds *decodeState, isCall bool) {
	var offset uint32
	if ds.opSize32 {
		offset = c.fetch32(ds)
	} else {
		offset = uint32(c.fetch16(ds))
	}
	selector := c.fetch16(ds)
	if isCall {
		c.pushZ(ds, uint32(c.seg[SegCS].selector))
		c.pushZ(ds, c.eip)
	}
	if ex := c.loadSegment(SegCS, selector); ex != nil {
		panic(ex)
	}
	c.cpl = selectorRPL(selector)
	c.eip = offset
}

func (c *CPUState) execRetNear(ds *decodeState, imm16 bool) {
	var extra uint32
	if imm16 {
		extra = uint32(c.fetch16(ds))
	}
	c.eip = c.popZ(ds)
	c.regs[RegESP] += extra
}

func (c *CPUState) execRetFar(ds *decodeState, imm16 bool) {
	var extra uint32
	if imm16 {
		extra = uint32(c.fetch16(ds))
	}
	eip := c.popZ(ds)
	cs := uint16(c.popZ(ds))
	if ex := c.loadSegment(SegCS, cs); ex != nil {
		panic(ex)
	}
	c.cpl = selectorRPL(cs)
	c.eip = eip
	c.regs[RegESP] += extra
}

// execLoop implements LOOP/LOOPE/LOOPNE/JCXZ (0xE0-0xE3), which count
// down (E)CX or CX depending on the address size, not the operand
// size (spec.md is silent; this follows real x86 semantics).
func (c *CPUState) execLoop(ds *decodeState) {
	rel := int32(int8(c.fetch8(ds)))
	var count uint32
	if ds.addrSize32 {
		count = c.regs[RegECX] - 1
		c.regs[RegECX] = count
	} else {
		count = uint32(uint16(c.regs[RegECX]) - 1)
		c.regs[RegECX] = (c.regs[RegECX] &^ 0xffff) | count
	}
	take := false
	switch ds.opcode {
	case 0xE0: // LOOPNE/LOOPNZ
		take = count != 0 && !c.flagSet(flagZF)
	case 0xE1: // LOOPE/LOOPZ
		take = count != 0 && c.flagSet(flagZF)
	case 0xE2: // LOOP
		take = count != 0
	case 0xE3: // JCXZ/JECXZ
		take = count == 0
		if ds.opcode == 0xE3 {
			// JCXZ tests the counter before the decrement LOOP performs;
			// undo the decrement just applied above.
			if ds.addrSize32 {
				c.regs[RegECX]++
				take = c.regs[RegECX] == 0
			} else {
				c.regs[RegECX] = (c.regs[RegECX] &^ 0xffff) | uint32(uint16(c.regs[RegECX])+1)
				take = uint16(c.regs[RegECX]) == 0
			}
		}
	}
	if take {
		c.eip = uint32(int32(c.eip) + rel)
	}
}

func (c *CPUState) execFlagBit(ds *decodeState) {
	switch ds.opcode {
	case 0xF5: // CMC
		c.setFlagBit(flagCF, !c.flagSet(flagCF))
	case 0xF8: // CLC
		c.setFlagBit(flagCF, false)
	case 0xF9: // STC
		c.setFlagBit(flagCF, true)
	case 0xFA: // CLI
		c.setFlagBit(flagIF, false)
	case 0xFB: // STI
		c.setFlagBit(flagIF, true)
	case 0xFC: // CLD
		c.setFlagBit(flagDF, false)
	case 0xFD: // STD
		c.setFlagBit(flagDF, true)
	case 0x9E: // SAHF
		ah := uint32(c.readReg8(4))
		f := (c.materializeFlags() &^ 0xff) | ah
		c.eflags = materializeEflagsFixed(f)
		c.lazy = flagTriple{op: flagOpNone}
	case 0x9F: // LAHF
		c.writeReg8(4, uint8(c.Eflags()))
	case 0x9C: // PUSHF/PUSHFD
		c.pushZ(ds, c.Eflags()&widthMask(opWidth(ds.opSize32)))
	case 0x9D: // POPF/POPFD
		v := c.popZ(ds)
		if ds.opSize32 {
			c.SetEflags(v)
		} else {
			c.SetEflags((c.eflags &^ 0xffff) | (v & 0xffff))
		}
	}
}

func (c *CPUState) execIO(ds *decodeState) {
	switch ds.opcode {
	case 0xE4: // IN AL, imm8
		port := uint16(c.fetch8(ds))
		c.writeReg8(0, c.io.In(port))
	case 0xE5: // IN eAX, imm8
		port := uint16(c.fetch8(ds))
		c.inZ(ds, port)
	case 0xE6: // OUT imm8, AL
		port := uint16(c.fetch8(ds))
		c.io.Out(port, c.readReg8(0))
	case 0xE7: // OUT imm8, eAX
		port := uint16(c.fetch8(ds))
		c.outZ(ds, port)
	case 0xEC: // IN AL, DX
		c.writeReg8(0, c.io.In(uint16(c.regs[RegEDX])))
	case 0xED: // IN eAX, DX
		c.inZ(ds, uint16(c.regs[RegEDX]))
	case 0xEE: // OUT DX, AL
		c.io.Out(uint16(c.regs[RegEDX]), c.readReg8(0))
	case 0xEF: // OUT DX, eAX
		c.outZ(ds, uint16(c.regs[RegEDX]))
	}
}

func (c *CPUState) inZ(ds *decodeState, port uint16) {
	lo := uint32(c.io.In(port))
	hi := uint32(c.io.In(port + 1))
	v := lo | hi<<8
	if ds.opSize32 {
		v |= uint32(c.io.In(port+2))<<16 | uint32(c.io.In(port+3))<<24
	}
	c.setRegZAX(ds, v)
}

func (c *CPUState) outZ(ds *decodeState, port uint16) {
	v := c.regReadZAX(ds)
	c.io.Out(port, uint8(v))
	c.io.Out(port+1, uint8(v>>8))
	if ds.opSize32 {
		c.io.Out(port+2, uint8(v>>16))
		c.io.Out(port+3, uint8(v>>24))
	}
}

func (c *CPUState) execInterrupt(ds *decodeState) {
	switch ds.opcode {
	case 0xCC: // INT3
		c.raise(&Exception{Vector: excBP})
	case 0xCD: // INT imm8
		vector := c.fetch8(ds)
		c.Int(vector)
	case 0xCE: // INTO
		if c.flagSet(flagOF) {
			c.raise(&Exception{Vector: excOF})
		}
	case 0xCF: // IRET/IRETD
		if ex := c.iret(ds.opSize32); ex != nil {
			panic(ex)
		}
	}
}
