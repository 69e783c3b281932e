/*
   8254 programmable interval timer.

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

   Three 16-bit counters (spec.md §4.8); modes 0, 2 and 3 drive the
   output, while modes 1, 4 and 5 only count down and reload, with no
   output change. Channel 0 drives
   IRQ0 in mode 2 (rate generator); channel 2's output gates the PC
   speaker in mode 3 (square wave) but the speaker itself is an
   external collaborator (spec.md §1 Non-goals: sound synthesis).
*/

package pit

import "sync"

// accessMode selects which byte(s) of the 16-bit reload/latch value
// port I/O addresses, per the control word's RW field.
type accessMode int

const (
	accessLatch accessMode = iota
	accessLo
	accessHi
	accessLoHi
)

type channel struct {
	mode    uint8
	bcd     bool
	access  accessMode
	loNext  bool // for accessLoHi: true = next I/O is the low byte

	reload  uint16
	count   uint16
	gate    bool
	out     bool
	running bool

	latched   bool
	latchVal  uint16
	latchHalf bool // true once the low half of a latched read is consumed

	// loadPending buffers a lo/hi write pair until both halves arrive.
	loadLo    uint8
	haveLo    bool
}

func (c *channel) reset() {
	*c = channel{gate: true, loNext: true}
}

func (c *channel) writeControl(access accessMode, mode uint8, bcd bool) {
	c.access = access
	c.mode = mode
	c.bcd = bcd
	c.loNext = true
	c.haveLo = false
	c.latched = false
	c.running = false
}

func (c *channel) latchCount() {
	if c.latched {
		return // a pending latch is not overwritten by another latch command
	}
	c.latched = true
	c.latchVal = c.count
	c.latchHalf = true
}

func (c *channel) writeData(val uint8) {
	switch c.access {
	case accessLo:
		c.reload = (c.reload &^ 0xff) | uint16(val)
		c.start()
	case accessHi:
		c.reload = (c.reload &^ 0xff00) | uint16(val)<<8
		c.start()
	case accessLoHi:
		if c.loNext {
			c.loadLo = val
			c.loNext = false
			return
		}
		c.reload = uint16(c.loadLo) | uint16(val)<<8
		c.loNext = true
		c.start()
	}
}

func (c *channel) start() {
	c.count = c.reload
	if c.count == 0 {
		c.count = 0x10000 - 1 // 0 means 65536, the 8254's documented wraparound
	}
	c.running = true
	switch c.mode {
	case 0:
		c.out = false
	default:
		c.out = true
	}
}

func (c *channel) readData() uint8 {
	if c.latched {
		if c.access == accessLoHi {
			if c.latchHalf {
				c.latchHalf = false
				return uint8(c.latchVal)
			}
			c.latched = false
			return uint8(c.latchVal >> 8)
		}
		c.latched = false
		if c.access == accessHi {
			return uint8(c.latchVal >> 8)
		}
		return uint8(c.latchVal)
	}
	if c.access == accessLoHi {
		if c.latchHalf {
			c.latchHalf = false
			return uint8(c.count)
		}
		c.latchHalf = true
		return uint8(c.count >> 8)
	}
	if c.access == accessHi {
		return uint8(c.count >> 8)
	}
	return uint8(c.count)
}

// tick advances the channel by n input clock pulses, returning true
// exactly on the pulse(s) where its output transitions low-to-high
// (the edge PIC.RaiseIRQ should fire for, channel 0).
func (c *channel) tick(n int) bool {
	if !c.running || !c.gate {
		return false
	}
	fired := false
	for i := 0; i < n; i++ {
		if c.count == 0 {
			switch c.mode {
			case 0: // interrupt on terminal count: fires once, then free-runs
				c.out = true
				fired = true
				c.count = 0xffff
			case 2: // rate generator: pulse and reload
				c.out = true
				fired = true
				c.count = c.reload
				if c.count == 0 {
					c.count = 0x10000 - 1
				}
			case 3: // square wave: toggle and reload (half-count precision not modeled)
				prev := c.out
				c.out = !c.out
				if !prev && c.out {
					fired = true
				}
				c.count = c.reload
				if c.count == 0 {
					c.count = 0x10000 - 1
				}
			default:
				c.count = c.reload
			}
			continue
		}
		c.count--
	}
	return fired
}

// irqSink is the narrow contract the PIT needs to assert channel 0's
// output on IRQ0 (spec.md §6 "IRQ assignments").
type irqSink interface {
	RaiseIRQ(n int)
	LowerIRQ(n int)
}

// PIT is the three-channel 8254, wired to a PIC for channel 0's
// output.
type PIT struct {
	mu   sync.Mutex
	ch   [3]channel
	pic  irqSink
}

// New returns a PIT in its post-reset state, channel 0's output
// routed to IRQ0 on pic.
func New(pic irqSink) *PIT {
	p := &PIT{pic: pic}
	p.Reset()
	return p
}

func (p *PIT) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.ch {
		p.ch[i].reset()
	}
}

// Tick advances all three channels by n PIT clock pulses (1.193182
// MHz nominal); the host's cooperative scheduler calls this once per
// instruction batch (spec.md §9 "cpu_step_batch(n) alternates with
// each device.tick(now)").
func (p *PIT) Tick(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch[0].tick(n) && p.pic != nil {
		p.pic.RaiseIRQ(0)
		p.pic.LowerIRQ(0) // edge-style pulse: PIC latches it into IRR immediately
	}
	p.ch[1].tick(n)
	p.ch[2].tick(n)
}

// SpeakerGateOut reports channel 2's gate input and current output,
// for a host-side PC speaker collaborator (spec.md §1 Non-goals:
// sound synthesis is out of scope here, only the gate/output signals).
func (p *PIT) SpeakerGateOut() (gate, out bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch[2].gate, p.ch[2].out
}

// SetSpeakerGate sets channel 2's gate input (driven by i8042 port
// 0x61 bit 0 on real hardware).
func (p *PIT) SetSpeakerGate(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch[2].gate = on
}

// In/Out implement the port I/O contract for 0x40-0x43 (spec.md §6).

func (p *PIT) In(port uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port == 0x43 {
		return 0xff // control word register is write-only
	}
	return p.ch[port-0x40].readData()
}

func (p *PIT) Out(port uint16, val uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port != 0x43 {
		p.ch[port-0x40].writeData(val)
		return
	}
	sel := val >> 6
	if sel == 3 {
		p.readBack(val)
		return
	}
	access := accessMode((val >> 4) & 3)
	mode := (val >> 1) & 7
	if mode > 5 {
		mode &= 3 // modes 6,7 alias 2,3 per the datasheet
	}
	bcd := val&1 != 0
	if access == accessLatch {
		p.ch[sel].latchCount()
		return
	}
	p.ch[sel].writeControl(access, mode, bcd)
}

// readBack implements the minimal read-back command (status latching
// is not modeled; only count latching, which real BIOS/DOS code
// relies on for channel 0 reload-value polling).
func (p *PIT) readBack(val uint8) {
	if val&0x20 == 0 { // latch count requested
		for i := 0; i < 3; i++ {
			if val&(1<<(1+i)) != 0 {
				p.ch[i].latchCount()
			}
		}
	}
}
