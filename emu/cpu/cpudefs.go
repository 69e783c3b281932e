/*
   CPU state definitions for the 32-bit x86 interpreter.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package cpu

import "sync"

// General register indices, in the order the ModR/M reg field names
// them for a 32-bit operand size.
const (
	RegEAX = 0
	RegECX = 1
	RegEDX = 2
	RegEBX = 3
	RegESP = 4
	RegEBP = 5
	RegESI = 6
	RegEDI = 7
)

// Segment register indices.
const (
	SegES = 0
	SegCS = 1
	SegSS = 2
	SegDS = 3
	SegFS = 4
	SegGS = 5
)

// EFLAGS bit positions; arithFlags below marks the ones the lazy
// arithmetic-flag triple supplies.
const (
	flagCF uint32 = 1 << 0
	flagPF uint32 = 1 << 2
	flagAF uint32 = 1 << 4
	flagZF uint32 = 1 << 6
	flagSF uint32 = 1 << 7
	flagTF uint32 = 1 << 8
	flagIF uint32 = 1 << 9
	flagDF uint32 = 1 << 10
	flagOF uint32 = 1 << 11
	flagIOPL uint32 = 3 << 12
	flagNT   uint32 = 1 << 14
	flagRF   uint32 = 1 << 16
	flagVM   uint32 = 1 << 17
	flagAC   uint32 = 1 << 18

	// arithFlags is the set of bits the lazy triple supplies; they are
	// masked out of the "non-lazy" EFLAGS store and recomputed from
	// the triple on demand (spec.md §3 Flag model).
	arithFlags = flagCF | flagPF | flagAF | flagZF | flagSF | flagOF
)

// segCache is the hidden descriptor cache kept in sync with the last
// selector load for one segment register (spec.md §3).
type segCache struct {
	selector uint16
	base     uint32
	limit    uint32 // already granularity-expanded
	rights   uint8  // packed access byte
	present  bool
	big      bool // D/B bit: 32-bit default operand/address size
}

// descTable is a GDTR/IDTR/LDTR-style {base, limit} pair.
type descTable struct {
	base  uint32
	limit uint32
}

// flagOp tags the last flag-setting operation so CF/PF/AF/ZF/SF/OF can
// be materialized on demand instead of computed eagerly (spec.md §3,
// §4.6). width is in bits (8/16/32) and matters for sign/carry-out
// position.
type flagOp uint8

const (
	flagOpNone flagOp = iota
	flagOpAdd
	flagOpAdc
	flagOpSub
	flagOpSbb
	flagOpCmp
	flagOpInc
	flagOpDec
	flagOpAnd
	flagOpOr
	flagOpXor
	flagOpNot
	flagOpShl
	flagOpShr
	flagOpSar
	flagOpRol
	flagOpRor
	flagOpRcl
	flagOpRcr
	flagOpMul
	flagOpImul
	flagOpNeg
)

// flagTriple is the deferred condition-code state: an opcode tag plus
// up to two operand captures, materialized by the table in flags.go.
type flagTriple struct {
	op    flagOp
	width uint8 // 8, 16 or 32
	dst   uint32
	src   uint32
	res   uint32 // result, where the op needs it directly (shifts, logic)
	cf    bool   // carry-in consumed by ADC/SBB/RCL/RCR
}

// x87State is the optional co-processor register file. When absent,
// FP opcodes raise #NM (spec.md §4.5).
type x87State struct {
	present bool
	st      [8]float64
	top     uint8
	control uint16
	status  uint16
	tag     uint16
}

// pendingEvent bits, sampled at every instruction boundary (spec.md
// §3 "Pending-event word").
type pendingEvent uint8

const (
	pendingExternal pendingEvent = 1 << iota
	pendingNMI
	pendingDebugTrap
	pendingReset
	pendingShutdown
)

// CPUState is the entire architectural and micro-architectural guest
// CPU state: general/segment/control/debug registers, the lazy flag
// triple, the software TLB, and the pending-event word. One CPUState
// models the single guest CPU (spec.md explicitly excludes SMP).
type CPUState struct {
	regs [8]uint32 // EAX..EDI, indexed by Reg* constants
	eip  uint32

	eflags uint32 // non-lazy bits only; arithFlags bits are stale here
	lazy   flagTriple

	seg [6]segCache // indexed by Seg* constants

	cr [5]uint32 // CR0-CR4 (CR1 reserved)
	dr [8]uint32 // DR0-DR7

	gdtr descTable
	idtr descTable
	ldtr segCache // LDTR has a descriptor cache like a segment
	tr   segCache // task register, likewise

	cpl uint8 // current privilege level, kept equal to CS selector RPL

	fpu x87State

	tlb tlbT

	pending       pendingEvent
	halted        bool
	deliveryDepth int // nested-fault counter for double/triple fault escalation

	// instrEIP is the EIP of the instruction currently being fetched,
	// set before its first byte is read so a fault panicked from deep
	// in decode/execute can still be delivered against the start of
	// the faulting instruction rather than wherever c.eip had already
	// advanced to (spec.md §8's restartable-fault contract).
	instrEIP uint32

	generation int // CPU generation: 3 (386), 4 (486), 5 (Pentium) — gates optional opcodes

	// unused: per-instruction decode scratch lives in decodeState
	opSize32   bool
	addrSize32 bool
	segOver    int // -1 if no override, else Seg* index
	rep        uint8 // 0 none, 1 REP/REPE, 2 REPNE
	lock       bool

	io ioPorts

	// udSeen dedups the "unimplemented opcode" log line per spec.md
	// §7 item 4 ("log once per opcode").
	udSeen sync.Map

	// intHooks lets a collaborator service a software interrupt
	// directly against CPU state instead of through the guest IDT,
	// the same shape as the original disk BIOS hook (spec.md §4.11):
	// a hook returning true has fully handled the call (including
	// IRET-equivalent register/flag updates); false falls through to
	// normal IDT delivery.
	intHooks map[uint8]func(*CPUState) bool
}

// SetIntHook installs or removes (fn == nil) a direct interrupt-vector
// hook, bypassing IDT delivery when the hook reports it handled the
// call.
func (c *CPUState) SetIntHook(vector uint8, fn func(*CPUState) bool) {
	if c.intHooks == nil {
		c.intHooks = make(map[uint8]func(*CPUState) bool)
	}
	if fn == nil {
		delete(c.intHooks, vector)
		return
	}
	c.intHooks[vector] = fn
}

// ioPorts is the narrow contract the CPU needs from the port I/O
// router: byte in/out. Word/dword IN/OUT stitch two or four of these,
// little-endian, matching real bus behavior (spec.md §4.1).
type ioPorts interface {
	In(port uint16) uint8
	Out(port uint16, val uint8)
}

const (
	// CR0 bits used by the interpreter.
	cr0PE uint32 = 1 << 0 // protected mode enable
	cr0MP uint32 = 1 << 1
	cr0EM uint32 = 1 << 2 // emulation: no FPU
	cr0TS uint32 = 1 << 3
	cr0ET uint32 = 1 << 4
	cr0NE uint32 = 1 << 5
	cr0WP uint32 = 1 << 16 // write-protect, supervisor writes to RO pages
	cr0AM uint32 = 1 << 18
	cr0PG uint32 = 1 << 31 // paging enable

	cr4VME uint32 = 1 << 0
	cr4PVI uint32 = 1 << 1
	cr4PSE uint32 = 1 << 4 // page size extension (4MB superpages)
	cr4PGE uint32 = 1 << 7 // global pages
)

// Debug option bitmask, named after the teacher's debugconfig pattern
// but scoped to the x86 core's own classes.
const (
	debugCPU = 1 << iota
	debugMMU
	debugIRQ
	debugIO
	debugInst
)

var debugOption = map[string]int{
	"CPU":  debugCPU,
	"MMU":  debugMMU,
	"IRQ":  debugIRQ,
	"IO":   debugIO,
	"INST": debugInst,
}

var debugMsk int
