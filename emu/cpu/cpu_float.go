package cpu

/*
 * x86pc - x87 coprocessor opcodes (spec.md §4.5: "x87 FP optional;
 * CR0.EM set or no FPU configured raises #NM").
 *
 * The interpreter doesn't model x87 arithmetic; every ESC opcode
 * (0xD8-0xDF) routes here and raises #NM whenever the FPU is
 * unavailable, exactly as spec.md requires, and otherwise raises #UD -
 * a configured-but-unimplemented FPU is out of scope for this core
 * (spec.md §1 Non-goals list FPU as optional, not mandatory-and-exact).
 */

// execEscape handles opcodes 0xD8-0xDF (x87 ESC instructions).
func (c *CPUState) execEscape(ds *decodeState) {
	if c.cr[0]&cr0EM != 0 || !c.fpu.present {
		panic(&Exception{Vector: excNM})
	}
	// Consume the ModR/M byte (and any memory operand) so decode stays
	// in sync even though the arithmetic itself isn't modeled, then
	// report the opcode as unimplemented.
	c.decodeModRM(ds)
	c.raiseUD(ds.opcode)
}
