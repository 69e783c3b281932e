package cpu

/*
 * x86pc - String instructions: MOVS/CMPS/STOS/LODS/SCAS, with
 * REP/REPE/REPNE iteration (spec.md §4.5: "string ops honor DF and
 * REP, with early-exit on interrupt").
 *
 * Each call to execStringOp performs exactly one iteration. When a
 * REP-family prefix is active and more iterations remain, EIP is
 * rewound to the start of the prefixed instruction (ds.startEIP)
 * instead of looping internally, so the next Step() re-samples the
 * pending-event word before resuming - the same instruction-boundary
 * interruptibility real string instructions have.
 */

func stringWidth(ds *decodeState) uint8 {
	if ds.opcode&1 == 0 {
		return 8
	}
	return opWidth(ds.opSize32)
}

func (c *CPUState) strOffset(ds *decodeState, idxReg uint32) uint32 {
	if ds.addrSize32 {
		return c.regs[idxReg]
	}
	return uint32(uint16(c.regs[idxReg]))
}

func (c *CPUState) strRead(ds *decodeState, seg int, idxReg uint32, width uint8) uint32 {
	off := c.strOffset(ds, idxReg)
	switch width {
	case 8:
		v, ex := c.ReadByte(seg, off)
		if ex != nil {
			panic(ex)
		}
		return uint32(v)
	case 16:
		v, ex := c.ReadWord(seg, off)
		if ex != nil {
			panic(ex)
		}
		return uint32(v)
	default:
		v, ex := c.ReadDword(seg, off)
		if ex != nil {
			panic(ex)
		}
		return v
	}
}

func (c *CPUState) strWrite(ds *decodeState, seg int, idxReg uint32, width uint8, v uint32) {
	off := c.strOffset(ds, idxReg)
	var ex *Exception
	switch width {
	case 8:
		ex = c.WriteByte(seg, off, uint8(v))
	case 16:
		ex = c.WriteWord(seg, off, uint16(v))
	default:
		ex = c.WriteDword(seg, off, v)
	}
	if ex != nil {
		panic(ex)
	}
}

func (c *CPUState) strIndexAdvance(ds *decodeState, idxReg uint32, width uint8) {
	step := int32(width / 8)
	if c.flagSet(flagDF) {
		step = -step
	}
	if ds.addrSize32 {
		c.regs[idxReg] = uint32(int32(c.regs[idxReg]) + step)
		return
	}
	c.regs[idxReg] = (c.regs[idxReg] &^ 0xffff) | uint32(uint16(int16(c.regs[idxReg])+int16(step)))
}

func (c *CPUState) strCounter(ds *decodeState) uint32 {
	if ds.addrSize32 {
		return c.regs[RegECX]
	}
	return uint32(uint16(c.regs[RegECX]))
}

func (c *CPUState) strDecCounter(ds *decodeState) uint32 {
	if ds.addrSize32 {
		c.regs[RegECX]--
		return c.regs[RegECX]
	}
	v := uint16(c.regs[RegECX]) - 1
	c.regs[RegECX] = (c.regs[RegECX] &^ 0xffff) | uint32(v)
	return uint32(v)
}

// execStringOp runs one iteration of the string instruction in
// ds.opcode (spec.md §8: "REP with ECX=0 performs zero iterations, no
// memory access, flags unchanged").
func (c *CPUState) execStringOp(ds *decodeState) {
	width := stringWidth(ds)
	if ds.rep != 0 && c.strCounter(ds) == 0 {
		return
	}

	srcSeg := ds.effSeg(SegDS)
	isCompare := false
	switch ds.opcode {
	case 0xA4, 0xA5: // MOVS
		v := c.strRead(ds, srcSeg, RegESI, width)
		c.strWrite(ds, SegES, RegEDI, width, v)
		c.strIndexAdvance(ds, RegESI, width)
		c.strIndexAdvance(ds, RegEDI, width)
	case 0xA6, 0xA7: // CMPS
		isCompare = true
		a := c.strRead(ds, srcSeg, RegESI, width)
		b := c.strRead(ds, SegES, RegEDI, width)
		c.aluCompute(flagOpCmp, width, a, b)
		c.strIndexAdvance(ds, RegESI, width)
		c.strIndexAdvance(ds, RegEDI, width)
	case 0xAA, 0xAB: // STOS
		c.strWrite(ds, SegES, RegEDI, width, c.regReadZAXWidth(width))
		c.strIndexAdvance(ds, RegEDI, width)
	case 0xAC, 0xAD: // LODS
		v := c.strRead(ds, srcSeg, RegESI, width)
		c.setRegZAXWidth(width, v)
		c.strIndexAdvance(ds, RegESI, width)
	case 0xAE, 0xAF: // SCAS
		isCompare = true
		a := c.regReadZAXWidth(width)
		b := c.strRead(ds, SegES, RegEDI, width)
		c.aluCompute(flagOpCmp, width, a, b)
		c.strIndexAdvance(ds, RegEDI, width)
	}

	if ds.rep == 0 {
		return
	}
	remaining := c.strDecCounter(ds)
	cont := remaining != 0
	if isCompare {
		zf := c.flagSet(flagZF)
		if ds.rep == 1 { // REPE/REPZ
			cont = cont && zf
		} else { // REPNE/REPNZ
			cont = cont && !zf
		}
	}
	if cont {
		c.eip = ds.startEIP
	}
}

func (c *CPUState) regReadZAXWidth(width uint8) uint32 {
	switch width {
	case 8:
		return uint32(c.readReg8(0))
	case 16:
		return uint32(uint16(c.regs[RegEAX]))
	default:
		return c.regs[RegEAX]
	}
}

func (c *CPUState) setRegZAXWidth(width uint8, v uint32) {
	switch width {
	case 8:
		c.writeReg8(0, uint8(v))
	case 16:
		c.regs[RegEAX] = (c.regs[RegEAX] &^ 0xffff) | (v & 0xffff)
	default:
		c.regs[RegEAX] = v
	}
}

// execXlat implements XLAT/XLATB (0xD7): AL = [(E)BX + AL].
func (c *CPUState) execXlat(ds *decodeState) {
	base := c.strOffset(ds, RegEBX)
	off := base + uint32(c.readReg8(0))
	v, ex := c.ReadByte(ds.effSeg(SegDS), off)
	if ex != nil {
		panic(ex)
	}
	c.writeReg8(0, v)
}
