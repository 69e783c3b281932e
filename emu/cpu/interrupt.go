package cpu

/*
 * x86pc - Interrupt/exception dispatch through the IDT (spec.md §4.7).
 *
 * Delivery semantics follow the gate type: an interrupt gate clears
 * IF, a trap gate preserves it. Error codes are pushed for the fault
 * numbers that require them. A double fault while delivering a
 * contributory fault escalates to a triple fault, which sets the
 * reset-pending bit rather than crashing the process (spec.md §5
 * "Cancellation").
 */

import (
	mem "github.com/rcornwell/x86pc/emu/memory"
)

const (
	gateTypeTask       = 0x5
	gateType286Interrupt = 0x6
	gateType286Trap      = 0x7
	gateType386Interrupt = 0xe
	gateType386Trap      = 0xf
)

type idtGate struct {
	offset   uint32
	selector uint16
	gateType uint8
	dpl      uint8
	present  bool
}

func readIDTGate(idtr descTable, vector uint8) (idtGate, bool) {
	index := uint32(vector) * 8
	if index+7 > idtr.limit {
		return idtGate{}, false
	}
	addr := idtr.base + index
	lo := mem.GetDword(addr)
	hi := mem.GetDword(addr + 4)
	return idtGate{
		offset:   (lo & 0xffff) | (hi &^ 0xffff),
		selector: uint16(lo >> 16),
		gateType: uint8(hi>>8) & 0xf,
		dpl:      uint8(hi>>13) & 3,
		present:  hi&(1<<15) != 0,
	}, true
}

// contributory faults, for double/triple fault escalation (#DF is
// raised when one of these is being delivered and another of these,
// or a #PF, occurs before the first is dispatched).
func isContributory(vector uint8) bool {
	switch vector {
	case excDE, excTS, excNP, excSS, excGP:
		return true
	}
	return false
}

// deliverException pushes the return context and transfers control to
// the IDT handler for ex.Vector. deliveryDepth tracks nested faults
// for the double/triple-fault escalation rule.
func (c *CPUState) deliverException(ex *Exception) {
	c.deliveryDepth++
	defer func() { c.deliveryDepth-- }()

	if c.deliveryDepth > 3 {
		c.pending |= pendingReset
		c.deliveryDepth = 0
		return
	}
	if c.deliveryDepth == 3 {
		// A fault while delivering #DF itself: triple fault.
		c.pending |= pendingReset
		return
	}
	if c.deliveryDepth == 2 && (isContributory(ex.Vector) || ex.Vector == excPF) {
		df := &Exception{Vector: excDF, HasCode: true, Code: 0}
		c.deliverException(df)
		return
	}

	gate, ok := readIDTGate(c.idtr, ex.Vector)
	if !ok || !gate.present {
		// Not-present/absent gate while delivering: escalate.
		df := &Exception{Vector: excDF, HasCode: true, Code: 0}
		if ex.Vector == excDF {
			c.pending |= pendingReset
			return
		}
		c.deliverException(df)
		return
	}

	if ex.Vector == excPF {
		c.cr[2] = ex.PageFault.Addr
	}

	oldCPL := c.cpl
	destDesc, ok := readDescriptor(c.tableFor(gate.selector), gate.selector)
	if !ok {
		c.deliverException(gpFault(gate.selector))
		return
	}

	newCPL := descDPL(destDesc.rights)
	privChange := newCPL < oldCPL

	savedSS := c.seg[SegSS].selector
	savedESP := c.regs[RegESP]
	savedEFLAGS := c.Eflags()
	savedCS := c.seg[SegCS].selector
	savedEIP := c.eip

	if privChange {
		esp0, ss0 := c.ring0Stack()
		c.loadSegment(SegSS, ss0)
		c.regs[RegESP] = esp0
		c.cpl = newCPL
	}

	push := func(v uint32) {
		c.regs[RegESP] -= 4
		mem.PutDword(c.linear(SegSS, c.regs[RegESP]), v)
	}

	if privChange {
		push(uint32(savedSS))
		push(savedESP)
	}
	push(savedEFLAGS)
	push(uint32(savedCS))
	push(savedEIP)
	if ex.HasCode {
		push(uint32(ex.Code))
	}

	destDesc.selector = gate.selector
	c.seg[SegCS] = destDesc
	c.cpl = newCPL
	c.eip = gate.offset

	switch gate.gateType {
	case gateType386Interrupt, gateType286Interrupt:
		c.setFlagBit(flagIF, false)
	}
	c.setFlagBit(flagTF, false)
}

// ring0Stack reads ESP0/SS0 from the 32-bit TSS pointed to by TR, used
// on a privilege-raising transfer (spec.md §4.7: "the outer-ring
// SS:ESP is loaded from the TSS").
func (c *CPUState) ring0Stack() (esp uint32, ss uint16) {
	esp = mem.GetDword(c.tr.base + 4)
	ss = uint16(mem.GetDword(c.tr.base + 8))
	return
}

// raise delivers ex immediately, with EIP already past the current
// instruction; INT3 and INTO use it for their traps. Faults are
// panicked instead, so that Step resets EIP to the faulting
// instruction before delivery.
func (c *CPUState) raise(ex *Exception) {
	c.deliverException(ex)
}

// Int executes a software INT n (spec.md §4.5 "INT n indexes the IDT
// and raises through 4.7"), with no error code. A registered int hook
// (spec.md §4.11) gets first refusal.
func (c *CPUState) Int(vector uint8) {
	if hook, ok := c.intHooks[vector]; ok && hook(c) {
		return
	}
	c.deliverException(&Exception{Vector: vector})
}

// iret restores CS:EIP, EFLAGS, and on a privilege-change return,
// SS:ESP, all with protection checks (spec.md §4.5/§4.2).
func (c *CPUState) iret(is32 bool) *Exception {
	pop := func() (uint32, *Exception) {
		v, ex := c.ReadDword(SegSS, c.regs[RegESP])
		if ex != nil {
			return 0, ex
		}
		c.regs[RegESP] += 4
		return v, nil
	}

	eip, ex := pop()
	if ex != nil {
		return ex
	}
	cs, ex := pop()
	if ex != nil {
		return ex
	}
	flags, ex := pop()
	if ex != nil {
		return ex
	}

	retRPL := selectorRPL(uint16(cs))
	if retRPL > c.cpl {
		esp, ex := pop()
		if ex != nil {
			return ex
		}
		ss, ex := pop()
		if ex != nil {
			return ex
		}
		if ex := c.loadSegment(SegCS, uint16(cs)); ex != nil {
			return ex
		}
		c.eip = eip
		c.SetEflags(flags)
		if ex := c.loadSegment(SegSS, uint16(ss)); ex != nil {
			return ex
		}
		c.regs[RegESP] = esp
		return nil
	}

	if ex := c.loadSegment(SegCS, uint16(cs)); ex != nil {
		return ex
	}
	c.eip = eip
	c.SetEflags(flags)
	return nil
}

// checkPendingEvents samples the pending-event word at an instruction
// boundary (spec.md §3/§4.7 "External interrupt path"). Returns true
// if an event was delivered and the caller should not fetch/execute
// the next instruction this round.
func (c *CPUState) checkPendingEvents(pic interrupter) bool {
	if c.pending&pendingReset != 0 {
		c.reset()
		c.pending &^= pendingReset
		return true
	}
	if c.pending&pendingNMI != 0 {
		c.pending &^= pendingNMI
		c.halted = false
		c.deliverException(&Exception{Vector: excNMI})
		return true
	}
	if c.flagSet(flagIF) && pic.HasPendingInterrupt() {
		c.halted = false
		vector := pic.Acknowledge()
		c.deliverException(&Exception{Vector: vector})
		return true
	}
	return false
}

// interrupter is the narrow contract the CPU needs from the PIC pair.
type interrupter interface {
	HasPendingInterrupt() bool
	Acknowledge() uint8
}
