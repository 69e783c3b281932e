package cpu

/*
 * x86pc - Data movement opcodes: MOV, PUSH/POP, XCHG, LEA, sign/zero
 * extension, and the stack-frame helpers they share (spec.md §4.5).
 */

// pushZ/popZ push or pop a 16- or 32-bit value on SS:ESP per the
// current operand size, mirroring how the teacher's cpu.go keeps one
// push/pop helper shared by every opcode that touches the stack.
func (c *CPUState) pushZ(ds *decodeState, v uint32) {
	if ds.opSize32 {
		c.regs[RegESP] -= 4
		if ex := c.WriteDword(SegSS, c.regs[RegESP], v); ex != nil {
			panic(ex)
		}
		return
	}
	c.regs[RegESP] -= 2
	if ex := c.WriteWord(SegSS, c.regs[RegESP], uint16(v)); ex != nil {
		panic(ex)
	}
}

func (c *CPUState) popZ(ds *decodeState) uint32 {
	if ds.opSize32 {
		v, ex := c.ReadDword(SegSS, c.regs[RegESP])
		if ex != nil {
			panic(ex)
		}
		c.regs[RegESP] += 4
		return v
	}
	v, ex := c.ReadWord(SegSS, c.regs[RegESP])
	if ex != nil {
		panic(ex)
	}
	c.regs[RegESP] += 2
	return uint32(v)
}

func (c *CPUState) execMov(ds *decodeState) {
	switch ds.opcode {
	case 0x88: // MOV rm8, r8
		c.decodeModRM(ds)
		c.rmWrite8(ds, c.readReg8(ds.reg))
	case 0x89: // MOV rmZ, rZ
		c.decodeModRM(ds)
		c.rmWriteZ(ds, c.regReadZ(ds))
	case 0x8A: // MOV r8, rm8
		c.decodeModRM(ds)
		c.writeReg8(ds.reg, c.rmRead8(ds))
	case 0x8B: // MOV rZ, rmZ
		c.decodeModRM(ds)
		c.regWriteZ(ds, c.rmReadZ(ds))
	case 0x8C: // MOV rm16, Sreg
		c.decodeModRM(ds)
		sel := c.seg[ds.reg&7].selector
		if ds.isRegRM {
			c.regs[ds.rm] = (c.regs[ds.rm] &^ 0xffff) | uint32(sel)
		} else {
			if ex := c.WriteWord(ds.memSeg, ds.memOffset, sel); ex != nil {
				panic(ex)
			}
		}
	case 0x8E: // MOV Sreg, rm16
		c.decodeModRM(ds)
		v := c.rmRead16(ds)
		if ex := c.loadSegment(int(ds.reg&7), v); ex != nil {
			panic(ex)
		}
	case 0xA0: // MOV AL, moffs8
		off := c.fetchImmZ(ds)
		v, ex := c.ReadByte(ds.effSeg(SegDS), off)
		if ex != nil {
			panic(ex)
		}
		c.writeReg8(0, v)
	case 0xA1: // MOV eAX, moffsZ
		off := c.fetchImmZ(ds)
		v, ex := c.readDwordZ(ds, off)
		if ex != nil {
			panic(ex)
		}
		c.setRegZAX(ds, v)
	case 0xA2: // MOV moffs8, AL
		off := c.fetchImmZ(ds)
		if ex := c.WriteByte(ds.effSeg(SegDS), off, c.readReg8(0)); ex != nil {
			panic(ex)
		}
	case 0xA3: // MOV moffsZ, eAX
		off := c.fetchImmZ(ds)
		c.writeDwordZ(ds, off, c.regReadZAX(ds))
	}
}

// readDwordZ/writeDwordZ read/write a 16- or 32-bit value at a direct
// (moffs-style) offset through the effective segment.
func (c *CPUState) readDwordZ(ds *decodeState, off uint32) (uint32, *Exception) {
	seg := ds.effSeg(SegDS)
	if ds.opSize32 {
		return c.ReadDword(seg, off)
	}
	v, ex := c.ReadWord(seg, off)
	return uint32(v), ex
}

func (c *CPUState) writeDwordZ(ds *decodeState, off uint32, v uint32) {
	seg := ds.effSeg(SegDS)
	var ex *Exception
	if ds.opSize32 {
		ex = c.WriteDword(seg, off, v)
	} else {
		ex = c.WriteWord(seg, off, uint16(v))
	}
	if ex != nil {
		panic(ex)
	}
}

func (c *CPUState) execMovImm(ds *decodeState) {
	switch {
	case ds.opcode >= 0xB0 && ds.opcode <= 0xB7: // MOV reg8, imm8
		reg := ds.opcode - 0xB0
		c.writeReg8(reg, c.fetch8(ds))
	case ds.opcode >= 0xB8 && ds.opcode <= 0xBF: // MOV regZ, immZ
		reg := ds.opcode - 0xB8
		imm := c.fetchImmZ(ds)
		if ds.opSize32 {
			c.regs[reg] = imm
		} else {
			c.regs[reg] = (c.regs[reg] &^ 0xffff) | imm
		}
	case ds.opcode == 0xC6: // MOV rm8, imm8
		c.decodeModRM(ds)
		c.rmWrite8(ds, c.fetch8(ds))
	case ds.opcode == 0xC7: // MOV rmZ, immZ
		c.decodeModRM(ds)
		c.rmWriteZ(ds, c.fetchImmZ(ds))
	}
}

func (c *CPUState) execXchg(ds *decodeState) {
	if ds.opcode == 0x86 { // XCHG r8, rm8
		c.decodeModRM(ds)
		a := c.readReg8(ds.reg)
		b := c.rmRead8(ds)
		c.writeReg8(ds.reg, b)
		c.rmWrite8(ds, a)
		return
	}
	if ds.opcode == 0x87 { // XCHG rZ, rmZ
		c.decodeModRM(ds)
		a := c.regReadZ(ds)
		b := c.rmReadZ(ds)
		c.regWriteZ(ds, b)
		c.rmWriteZ(ds, a)
		return
	}
	// 0x91-0x97: XCHG eAX, reg
	reg := uint32(ds.opcode - 0x90)
	a := c.regReadZAX(ds)
	var b uint32
	if ds.opSize32 {
		b = c.regs[reg]
		c.regs[reg] = a
	} else {
		b = uint32(uint16(c.regs[reg]))
		c.regs[reg] = (c.regs[reg] &^ 0xffff) | a
	}
	c.setRegZAX(ds, b)
}

func (c *CPUState) execLea(ds *decodeState) {
	c.decodeModRM(ds)
	if ds.isRegRM {
		c.raiseUD(ds.opcode)
		return
	}
	if ds.opSize32 {
		c.regs[ds.reg] = ds.memOffset
	} else {
		c.regs[ds.reg] = (c.regs[ds.reg] &^ 0xffff) | (ds.memOffset & 0xffff)
	}
}

func (c *CPUState) execPushPopSeg(ds *decodeState) {
	switch ds.opcode {
	case 0x06:
		c.pushZ(ds, uint32(c.seg[SegES].selector))
	case 0x07:
		if ex := c.loadSegment(SegES, uint16(c.popZ(ds))); ex != nil {
			panic(ex)
		}
	case 0x0E:
		c.pushZ(ds, uint32(c.seg[SegCS].selector))
	case 0x16:
		c.pushZ(ds, uint32(c.seg[SegSS].selector))
	case 0x17:
		if ex := c.loadSegment(SegSS, uint16(c.popZ(ds))); ex != nil {
			panic(ex)
		}
	case 0x1E:
		c.pushZ(ds, uint32(c.seg[SegDS].selector))
	case 0x1F:
		if ex := c.loadSegment(SegDS, uint16(c.popZ(ds))); ex != nil {
			panic(ex)
		}
	}
}

func (c *CPUState) execPushPopReg(ds *decodeState) {
	if ds.opcode >= 0x50 && ds.opcode <= 0x57 {
		reg := uint32(ds.opcode - 0x50)
		var v uint32
		if ds.opSize32 {
			v = c.regs[reg]
		} else {
			v = uint32(uint16(c.regs[reg]))
		}
		c.pushZ(ds, v)
		return
	}
	reg := uint32(ds.opcode - 0x58)
	v := c.popZ(ds)
	if ds.opSize32 {
		c.regs[reg] = v
	} else {
		c.regs[reg] = (c.regs[reg] &^ 0xffff) | v
	}
}

func (c *CPUState) execPushImm(ds *decodeState) {
	if ds.opcode == 0x68 {
		c.pushZ(ds, c.fetchImmZ(ds))
		return
	}
	v := uint32(int32(int8(c.fetch8(ds))))
	c.pushZ(ds, v&widthMask(opWidth(ds.opSize32)))
}

// execPushaPopa implements PUSHA/PUSHAD and POPA/POPAD (spec.md lists
// these as part of the 386 baseline opcode set).
func (c *CPUState) execPushaPopa(ds *decodeState, push bool) {
	order := [8]uint32{RegEAX, RegECX, RegEDX, RegEBX, RegESP, RegEBP, RegESI, RegEDI}
	if push {
		tmpESP := c.regs[RegESP]
		for _, r := range order {
			if r == RegESP {
				c.pushZ(ds, tmpESP)
			} else {
				c.pushZ(ds, c.regs[r])
			}
		}
		return
	}
	for i := len(order) - 1; i >= 0; i-- {
		v := c.popZ(ds)
		if order[i] == RegESP {
			continue // POPA discards the popped ESP value
		}
		if ds.opSize32 {
			c.regs[order[i]] = v
		} else {
			c.regs[order[i]] = (c.regs[order[i]] &^ 0xffff) | v
		}
	}
}

func (c *CPUState) execGroup1A(ds *decodeState) { // 0x8F: POP rm
	c.decodeModRM(ds)
	v := c.popZ(ds)
	c.rmWriteZ(ds, v)
}

func (c *CPUState) execMovZxSx(ds *decodeState, signed bool, srcWidth uint8) {
	c.decodeModRM(ds)
	var src uint32
	if srcWidth == 8 {
		src = uint32(c.rmRead8(ds))
	} else {
		src = uint32(c.rmRead16(ds))
	}
	if signed {
		if srcWidth == 8 {
			src = uint32(int32(int8(src)))
		} else {
			src = uint32(int32(int16(src)))
		}
	}
	c.regWriteZ(ds, src)
}

// execSignExtendAcc implements CBW/CWDE (0x98) and CWD/CDQ (0x99).
func (c *CPUState) execSignExtendAcc(ds *decodeState, wide bool) {
	if wide { // 0x98
		if ds.opSize32 {
			c.regs[RegEAX] = uint32(int32(int16(c.regs[RegEAX])))
		} else {
			c.regs[RegEAX] = (c.regs[RegEAX] &^ 0xffff) | uint32(uint16(int16(int8(c.regs[RegEAX]))))
		}
		return
	}
	// 0x99
	if ds.opSize32 {
		if int32(c.regs[RegEAX]) < 0 {
			c.regs[RegEDX] = 0xffffffff
		} else {
			c.regs[RegEDX] = 0
		}
		return
	}
	if int16(c.regs[RegEAX]) < 0 {
		c.regs[RegEDX] = (c.regs[RegEDX] &^ 0xffff) | 0xffff
	} else {
		c.regs[RegEDX] = c.regs[RegEDX] &^ 0xffff
	}
}
