package cpu

/*
 * x86pc - System instructions (control/debug register moves,
 * descriptor-table loads, INVLPG, CLTS) and the 0x00-0xFF one-byte
 * and 0F-prefixed two-byte opcode dispatch tables (spec.md §4.5).
 *
 * Opcodes this interpreter does not implement fall through to
 * raiseUD, which is the documented behavior for a deliberately partial
 * opcode set (spec.md §7 item 4: "unimplemented opcodes raise #UD,
 * logged once per opcode").
 */

// execGroupFE implements the 0xFE INC/DEC-r/m8 group.
func (c *CPUState) execGroupFE(ds *decodeState) {
	c.decodeModRM(ds)
	switch ds.reg {
	case 0:
		dst := uint32(c.rmRead8(ds))
		res := uint8((dst + 1) & 0xff)
		c.setFlags(flagOpInc, 8, dst, 0, uint32(res), false)
		c.rmWrite8(ds, res)
	case 1:
		dst := uint32(c.rmRead8(ds))
		res := uint8((dst - 1) & 0xff)
		c.setFlags(flagOpDec, 8, dst, 0, uint32(res), false)
		c.rmWrite8(ds, res)
	default:
		c.raiseUD(ds.opcode)
	}
}

// readFarPtr reads a far pointer (offset then 16-bit selector) at the
// memory operand just decoded by decodeModRM; only valid when the
// operand is memory, not a register.
func (c *CPUState) readFarPtr(ds *decodeState) (uint32, uint16) {
	off := c.rmReadZ(ds)
	width := opWidth(ds.opSize32)
	selOff := ds.memOffset + uint32(width/8)
	sel, ex := c.ReadWord(ds.memSeg, selOff)
	if ex != nil {
		panic(ex)
	}
	return off, sel
}

// execGroupFF implements the 0xFF INC/DEC/CALL/JMP/PUSH r/m group.
func (c *CPUState) execGroupFF(ds *decodeState) {
	c.decodeModRM(ds)
	width := opWidth(ds.opSize32)
	switch ds.reg {
	case 0:
		dst := c.rmReadZ(ds)
		res := (dst + 1) & widthMask(width)
		c.setFlags(flagOpInc, width, dst, 0, res, false)
		c.rmWriteZ(ds, res)
	case 1:
		dst := c.rmReadZ(ds)
		res := (dst - 1) & widthMask(width)
		c.setFlags(flagOpDec, width, dst, 0, res, false)
		c.rmWriteZ(ds, res)
	case 2: // CALL near indirect
		target := c.rmReadZ(ds)
		c.pushZ(ds, c.eip)
		c.eip = target
	case 3: // CALL far indirect
		if ds.isRegRM {
			c.raiseUD(ds.opcode)
			return
		}
		off, sel := c.readFarPtr(ds)
		c.pushZ(ds, uint32(c.seg[SegCS].selector))
		c.pushZ(ds, c.eip)
		if ex := c.loadSegment(SegCS, sel); ex != nil {
			panic(ex)
		}
		c.cpl = selectorRPL(sel)
		c.eip = off
	case 4: // JMP near indirect
		c.eip = c.rmReadZ(ds)
	case 5: // JMP far indirect
		if ds.isRegRM {
			c.raiseUD(ds.opcode)
			return
		}
		off, sel := c.readFarPtr(ds)
		if ex := c.loadSegment(SegCS, sel); ex != nil {
			panic(ex)
		}
		c.cpl = selectorRPL(sel)
		c.eip = off
	case 6: // PUSH r/m
		c.pushZ(ds, c.rmReadZ(ds))
	default:
		c.raiseUD(ds.opcode)
	}
}

// execMovCRx/execMovDRx implement 0F 20-23: MOV to/from CR0/2/3/4 and
// DR0-7. Only valid at CPL0; spec.md §4.2 privilege model applies
// uniformly to these system registers.
func (c *CPUState) execMovCRx(ds *decodeState, toReg bool) {
	c.decodeModRM(ds)
	if c.cpl != 0 {
		panic(gpFault(0))
	}
	crNum := ds.reg
	if int(crNum) >= len(c.cr) {
		c.raiseUD(ds.opcode)
		return
	}
	if toReg {
		c.regs[ds.rm] = c.cr[crNum]
	} else {
		c.cr[crNum] = c.regs[ds.rm]
		switch {
		case crNum == 3 && c.cr[4]&cr4PGE != 0:
			// spec.md §4.3: global pages survive a CR3 reload.
			c.tlb.flushNonGlobal()
		case crNum == 0 || crNum == 3 || crNum == 4:
			c.tlb.flushAll()
		}
	}
}

func (c *CPUState) execMovDRx(ds *decodeState, toReg bool) {
	c.decodeModRM(ds)
	if c.cpl != 0 {
		panic(gpFault(0))
	}
	if toReg {
		c.regs[ds.rm] = c.dr[ds.reg]
	} else {
		c.dr[ds.reg] = c.regs[ds.rm]
	}
}

// execDescTableOp implements the 0F 01 group: SGDT/SIDT/LGDT/LIDT (by
// memory operand), SMSW/LMSW (CR0 low word), and INVLPG (memory
// operand only).
func (c *CPUState) execDescTableOp(ds *decodeState) {
	c.decodeModRM(ds)
	switch ds.reg {
	case 0: // SGDT
		c.storeDescTable(ds, c.gdtr)
	case 1: // SIDT
		c.storeDescTable(ds, c.idtr)
	case 2: // LGDT
		c.gdtr = c.loadDescTable(ds)
	case 3: // LIDT
		c.idtr = c.loadDescTable(ds)
	case 4: // SMSW
		c.rmWriteZ(ds, c.cr[0]&0xffff)
	case 6: // LMSW
		v := c.rmReadZ(ds) & 0xffff
		c.cr[0] = (c.cr[0] &^ 0xffff) | v
	case 7: // INVLPG
		if ds.isRegRM {
			c.raiseUD(ds.opcode)
			return
		}
		c.invlpg(ds.memOffset)
	default:
		c.raiseUD(ds.opcode)
	}
}

func (c *CPUState) storeDescTable(ds *decodeState, t descTable) {
	if ds.isRegRM {
		c.raiseUD(ds.opcode)
		return
	}
	if ex := c.WriteWord(ds.memSeg, ds.memOffset, uint16(t.limit)); ex != nil {
		panic(ex)
	}
	if ex := c.WriteDword(ds.memSeg, ds.memOffset+2, t.base); ex != nil {
		panic(ex)
	}
}

func (c *CPUState) loadDescTable(ds *decodeState) descTable {
	if ds.isRegRM {
		c.raiseUD(ds.opcode)
		return descTable{}
	}
	limit, ex := c.ReadWord(ds.memSeg, ds.memOffset)
	if ex != nil {
		panic(ex)
	}
	base, ex := c.ReadDword(ds.memSeg, ds.memOffset+2)
	if ex != nil {
		panic(ex)
	}
	return descTable{base: base, limit: uint32(limit)}
}

// execLdtTr implements the 0F 00 group: SLDT/STR/LLDT/LTR/VERR/VERW.
func (c *CPUState) execLdtTr(ds *decodeState) {
	c.decodeModRM(ds)
	switch ds.reg {
	case 0: // SLDT
		c.rmWriteZ(ds, uint32(c.ldtr.selector))
	case 1: // STR
		c.rmWriteZ(ds, uint32(c.tr.selector))
	case 2: // LLDT
		sel := uint16(c.rmReadZ(ds))
		if sel&0xfffc == 0 {
			c.ldtr = segCache{selector: sel}
			return
		}
		desc, ok := readDescriptor(c.gdtr, sel)
		if !ok {
			panic(gpFault(sel))
		}
		desc.selector = sel
		c.ldtr = desc
	case 3: // LTR
		sel := uint16(c.rmReadZ(ds))
		desc, ok := readDescriptor(c.gdtr, sel)
		if !ok {
			panic(gpFault(sel))
		}
		desc.selector = sel
		c.tr = desc
	case 4, 5: // VERR/VERW: not modeled, treated as no-op success
	default:
		c.raiseUD(ds.opcode)
	}
}

// execClts implements CLTS (0F 06): clear CR0.TS.
func (c *CPUState) execClts(ds *decodeState) {
	if c.cpl != 0 {
		panic(gpFault(0))
	}
	c.cr[0] &^= cr0TS
}

// dispatchOneByte executes a decoded single-byte opcode.
func (c *CPUState) dispatchOneByte(ds *decodeState) {
	op := ds.opcode

	if op < 0x40 && (op&7) <= 5 {
		c.execALU(ds, (op>>3)&7, op&7)
		return
	}

	switch {
	case op >= 0x40 && op <= 0x47:
		c.execIncDecReg(ds, op-0x40, false)
		return
	case op >= 0x48 && op <= 0x4f:
		c.execIncDecReg(ds, op-0x48, true)
		return
	case op >= 0x50 && op <= 0x5f:
		c.execPushPopReg(ds)
		return
	case op >= 0x70 && op <= 0x7f:
		c.execJccShort(ds)
		return
	case op >= 0x91 && op <= 0x97:
		c.execXchg(ds)
		return
	case op >= 0xb0 && op <= 0xbf:
		c.execMovImm(ds)
		return
	}

	switch op {
	case 0x06, 0x07, 0x0e, 0x16, 0x17, 0x1e, 0x1f:
		c.execPushPopSeg(ds)
	case 0x60:
		c.execPushaPopa(ds, true)
	case 0x61:
		c.execPushaPopa(ds, false)
	case 0x68, 0x6a:
		c.execPushImm(ds)
	case 0x80:
		c.execGroup1(ds, false, false)
	case 0x81:
		c.execGroup1(ds, true, false)
	case 0x83:
		c.execGroup1(ds, true, true)
	case 0x84: // TEST rm8, r8
		c.decodeModRM(ds)
		c.aluCompute(flagOpAnd, 8, uint32(c.rmRead8(ds)), uint32(c.readReg8(ds.reg)))
	case 0x85: // TEST rmZ, rZ
		c.decodeModRM(ds)
		width := opWidth(ds.opSize32)
		c.aluCompute(flagOpAnd, width, c.rmReadZ(ds), c.regReadZ(ds))
	case 0x86, 0x87:
		c.execXchg(ds)
	case 0x88, 0x89, 0x8a, 0x8b, 0x8c, 0x8e, 0xa0, 0xa1, 0xa2, 0xa3:
		c.execMov(ds)
	case 0x8d:
		c.execLea(ds)
	case 0x8f:
		c.execGroup1A(ds)
	case 0x90: // NOP
	case 0x98:
		c.execSignExtendAcc(ds, true)
	case 0x99:
		c.execSignExtendAcc(ds, false)
	case 0x9a:
		c.execFarJmpCall(ds, true)
	case 0x9b: // FWAIT: no x87 pipeline to synchronize with
	case 0x9c, 0x9d, 0x9e, 0x9f, 0xf5, 0xf8, 0xf9, 0xfa, 0xfb, 0xfc, 0xfd:
		c.execFlagBit(ds)
	case 0xa4, 0xa5, 0xa6, 0xa7, 0xaa, 0xab, 0xac, 0xad, 0xae, 0xaf:
		c.execStringOp(ds)
	case 0xa8: // TEST AL, imm8
		imm := c.fetch8(ds)
		c.aluCompute(flagOpAnd, 8, uint32(c.readReg8(0)), uint32(imm))
	case 0xa9: // TEST eAX, immZ
		imm := c.fetchImmZ(ds)
		c.aluCompute(flagOpAnd, opWidth(ds.opSize32), c.regReadZAX(ds), imm)
	case 0xc0:
		c.execShiftGroup(ds, false, shiftCountImm)
	case 0xc1:
		c.execShiftGroup(ds, true, shiftCountImm)
	case 0xc2:
		c.execRetNear(ds, true)
	case 0xc3:
		c.execRetNear(ds, false)
	case 0xc6, 0xc7:
		c.execMovImm(ds)
	case 0xc9: // LEAVE
		c.regs[RegESP] = c.regs[RegEBP]
		c.regs[RegEBP] = c.popZ(ds)
	case 0xca:
		c.execRetFar(ds, true)
	case 0xcb:
		c.execRetFar(ds, false)
	case 0xcc, 0xcd, 0xce, 0xcf:
		c.execInterrupt(ds)
	case 0xd0:
		c.execShiftGroup(ds, false, shiftCountOne)
	case 0xd1:
		c.execShiftGroup(ds, true, shiftCountOne)
	case 0xd2:
		c.execShiftGroup(ds, false, shiftCountCL)
	case 0xd3:
		c.execShiftGroup(ds, true, shiftCountCL)
	case 0xd7:
		c.execXlat(ds)
	case 0xd8, 0xd9, 0xda, 0xdb, 0xdc, 0xdd, 0xde, 0xdf:
		c.execEscape(ds)
	case 0xe0, 0xe1, 0xe2, 0xe3:
		c.execLoop(ds)
	case 0xe4, 0xe5, 0xe6, 0xe7, 0xec, 0xed, 0xee, 0xef:
		c.execIO(ds)
	case 0xe8, 0xe9, 0xeb:
		c.execJmpCallRel(ds)
	case 0xea:
		c.execFarJmpCall(ds, false)
	case 0xf4:
		c.Halt()
	case 0xf6:
		c.execUnaryGroup(ds, false)
	case 0xf7:
		c.execUnaryGroup(ds, true)
	case 0xfe:
		c.execGroupFE(ds)
	case 0xff:
		c.execGroupFF(ds)
	default:
		c.raiseUD(op)
	}
}

// dispatchTwoByte executes a decoded 0F-prefixed opcode.
func (c *CPUState) dispatchTwoByte(ds *decodeState) {
	op := ds.opcode

	if op >= 0x80 && op <= 0x8f { // Jcc near
		cc := op - 0x80
		rel := c.fetchSignedImmZ(ds)
		if c.evalCond(cc) {
			c.eip = uint32(int32(c.eip) + rel)
		}
		return
	}

	switch op {
	case 0x00:
		c.execLdtTr(ds)
	case 0x01:
		c.execDescTableOp(ds)
	case 0x06:
		c.execClts(ds)
	case 0x20:
		c.execMovCRx(ds, true)
	case 0x22:
		c.execMovCRx(ds, false)
	case 0x21:
		c.execMovDRx(ds, true)
	case 0x23:
		c.execMovDRx(ds, false)
	case 0xa2: // CPUID: not modeled; zero the result registers
		c.regs[RegEAX], c.regs[RegEBX], c.regs[RegECX], c.regs[RegEDX] = 0, 0, 0, 0
	case 0xb6:
		c.execMovZxSx(ds, false, 8)
	case 0xb7:
		c.execMovZxSx(ds, false, 16)
	case 0xbe:
		c.execMovZxSx(ds, true, 8)
	case 0xbf:
		c.execMovZxSx(ds, true, 16)
	default:
		c.raiseUD(op)
	}
}
