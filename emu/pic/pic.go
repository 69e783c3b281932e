/*
   8259A programmable interrupt controller pair.

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
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

   Two cascaded 8259 controllers (spec.md §4.8): master at 0x20/0x21,
   slave at 0xA0/0xA1, slave output wired to the master's IRQ2 input.
   IRR/ISR/IMR plus the ICW1-4 initialization sequence and the OCW2/3
   runtime commands are modeled per chip, the master additionally
   resolving which chip services a given acknowledge.
*/

package pic

import "sync"

// chip is one 8259: IRR, ISR, IMR and the init/runtime command state.
type chip struct {
	irr uint8 // interrupt request register
	isr uint8 // in-service register
	imr uint8 // interrupt mask register

	icwStep  int  // 0 = idle/expecting ICW1, 1..3 = expecting ICW2..4
	icw4Need bool // ICW1 bit0: ICW4 will follow
	single   bool // ICW1 bit1: no cascading (slave not present)
	vecBase  uint8

	autoEOI     bool
	rotateOnEOI bool
	specialMask bool
	readISR     bool // OCW3: next status read returns ISR instead of IRR
	pollMode    bool
}

func (p *chip) reset() {
	*p = chip{imr: 0xff}
}

// raise sets bit irq in IRR whether or not IMR masks it (IMR is
// applied when picking a request); level-triggered only
// (spec.md names no edge/level distinction, so level is assumed, the
// common default for 8259-driven PC peripherals).
func (p *chip) raise(irq uint8) {
	p.irr |= 1 << irq
}

func (p *chip) lower(irq uint8) {
	p.irr &^= 1 << irq
}

// highestRequest returns the lowest-numbered requested-and-unmasked
// IRQ not blocked by a higher-or-equal-priority in-service IRQ, or
// (0, false) if nothing is eligible (spec.md §8: "asserted_vector ∈
// {v : (IRR & ~IMR) has bit v, v < any bit already in ISR}").
func (p *chip) highestRequest() (uint8, bool) {
	pending := p.irr &^ p.imr
	if pending == 0 {
		return 0, false
	}
	for irq := uint8(0); irq < 8; irq++ {
		if pending&(1<<irq) == 0 {
			continue
		}
		if !p.specialMask {
			// A higher-or-equal priority IRQ already in service
			// blocks everything below it.
			for hi := uint8(0); hi <= irq; hi++ {
				if p.isr&(1<<hi) != 0 {
					return 0, false
				}
			}
		}
		return irq, true
	}
	return 0, false
}

// writeCmd handles OCW2 (EOI forms) and OCW3 (read-select, poll,
// special mask) on the command port.
func (p *chip) writeCmd(val uint8) {
	switch {
	case val&0x10 != 0: // ICW1: (re)start init sequence
		p.icw4Need = val&0x01 != 0
		p.single = val&0x02 != 0
		p.icwStep = 1
		p.irr, p.isr = 0, 0
		p.imr = 0
		p.autoEOI = false
		return
	case val&0x08 != 0: // OCW3
		if val&0x04 != 0 {
			p.pollMode = true
		}
		if val&0x02 != 0 {
			p.readISR = val&0x01 != 0
		}
		if val&0x40 != 0 {
			p.specialMask = val&0x20 != 0
		}
		return
	default: // OCW2: EOI forms, non-specific/specific, with/without rotate
		specific := val&0x40 != 0
		rotate := val&0x80 != 0
		irq := val & 0x07
		switch {
		case specific:
			p.isr &^= 1 << irq
		default:
			// Non-specific EOI: clear the highest-priority in-service bit.
			for i := uint8(0); i < 8; i++ {
				if p.isr&(1<<i) != 0 {
					p.isr &^= 1 << i
					break
				}
			}
		}
		p.rotateOnEOI = rotate
	}
}

func (p *chip) writeData(val uint8) {
	switch p.icwStep {
	case 1: // ICW2: vector base
		p.vecBase = val &^ 0x07
		p.icwStep = 2
	case 2: // ICW3: cascade wiring, ignored beyond consuming the byte
		if p.icw4Need {
			p.icwStep = 3
		} else {
			p.icwStep = 0
		}
	case 3: // ICW4
		p.autoEOI = val&0x02 != 0
		p.icwStep = 0
	default: // OCW1: mask register
		p.imr = val
	}
}

func (p *chip) readData() uint8 {
	if p.pollMode {
		p.pollMode = false
		if irq, ok := p.highestRequest(); ok {
			return 0x80 | irq
		}
		return 0
	}
	if p.readISR {
		return p.isr
	}
	return p.irr
}

// ack commits the chip's highest pending request into ISR (unless
// auto-EOI, which never latches it) and returns its IRQ number.
func (p *chip) ack() (uint8, bool) {
	irq, ok := p.highestRequest()
	if !ok {
		return 0, false
	}
	p.irr &^= 1 << irq
	if !p.autoEOI {
		p.isr |= 1 << irq
	}
	return irq, true
}

const cascadeIRQ = 2

// Pair is a master+slave 8259 pair, the slave's INT output wired to
// the master's IRQ2 input (spec.md §4.8 "slave cascades into IRQ2 on
// the master").
type Pair struct {
	mu            sync.Mutex
	master, slave chip
}

// NewPair returns a pair in its post-reset state (fully masked, no
// init sequence started, matching 8259 power-on behavior).
func NewPair() *Pair {
	p := &Pair{}
	p.Reset()
	return p
}

// Reset returns both chips to their power-on state (spec.md §5
// "Cancellation": "resets the PIC/PIT to power-on state").
func (p *Pair) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.master.reset()
	p.slave.reset()
}

// RaiseIRQ asserts IRQ line n (0-15); 8-15 route to the slave, which
// in turn asserts cascadeIRQ on the master.
func (p *Pair) RaiseIRQ(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 8 {
		p.master.raise(uint8(n))
		return
	}
	p.slave.raise(uint8(n - 8))
	if _, ok := p.slave.highestRequest(); ok {
		p.master.raise(cascadeIRQ)
	}
}

// LowerIRQ deasserts IRQ line n.
func (p *Pair) LowerIRQ(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 8 {
		p.master.lower(uint8(n))
		return
	}
	p.slave.lower(uint8(n - 8))
	if _, ok := p.slave.highestRequest(); !ok {
		p.master.lower(cascadeIRQ)
	}
}

// HasPendingInterrupt implements the cpu package's interrupter
// contract: true iff the master would deliver a vector right now.
func (p *Pair) HasPendingInterrupt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.master.highestRequest()
	return ok
}

// Acknowledge implements the cpu package's interrupter contract: the
// pseudo-acknowledge cycle that commits the highest-priority pending
// IRQ into ISR and returns its vector, cascading into the slave when
// the winning master IRQ is the cascade line (spec.md §4.7 "External
// interrupt path").
func (p *Pair) Acknowledge() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	irq, ok := p.master.ack()
	if !ok {
		return p.master.vecBase // spurious: no request actually pending
	}
	if irq == cascadeIRQ && !p.slave.single {
		sIrq, sok := p.slave.ack()
		if sok {
			return p.slave.vecBase + sIrq
		}
		return p.slave.vecBase + 7 // spurious slave IRQ7
	}
	return p.master.vecBase + irq
}

// Port I/O (spec.md §6: 0x020-0x021 master, 0x0A0-0x0A1 slave).

func (p *Pair) InMaster(port uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port&1 == 0 {
		return p.master.readData() // actually command-port status read
	}
	return p.master.imr
}

func (p *Pair) OutMaster(port uint16, val uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port&1 == 0 {
		p.master.writeCmd(val)
		return
	}
	p.master.writeData(val)
}

func (p *Pair) InSlave(port uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port&1 == 0 {
		return p.slave.readData()
	}
	return p.slave.imr
}

func (p *Pair) OutSlave(port uint16, val uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port&1 == 0 {
		p.slave.writeCmd(val)
		return
	}
	p.slave.writeData(val)
}
