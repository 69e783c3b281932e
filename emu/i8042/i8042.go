/*
   Intel 8042 keyboard/auxiliary controller.

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

   Two ports (0x60 data, 0x64 status/command), routing bytes between
   the keyboard and auxiliary-mouse FIFOs per a command-byte state
   machine (spec.md §4.9), grounded on QEMU's KBDState shape
   (original_source/src/i8042.c) adapted to Go value/method state
   instead of a C struct with function-pointer IRQ callbacks.
*/

package i8042

import "sync"

// Controller command-byte (mode register) bits.
const (
	modeKBDInt     = 1 << 0
	modeMouseInt   = 1 << 1
	modeSys        = 1 << 2
	modeNoKeylock  = 1 << 3
	modeDisableKbd = 1 << 4
	modeDisableAux = 1 << 5
	modeXlate      = 1 << 6
)

// Status register bits.
const (
	statOBF      = 1 << 0
	statIBF      = 1 << 1
	statSelfTest = 1 << 2
	statCmd      = 1 << 3
	statUnlocked = 1 << 4
	statAuxOBF   = 1 << 5
	statTimeout  = 1 << 6
	statParity   = 1 << 7
)

// Commands accepted on the 0x64 command port.
const (
	cmdReadMode    = 0x20
	cmdWriteMode   = 0x60
	cmdDisableAux  = 0xa7
	cmdEnableAux   = 0xa8
	cmdTestAux     = 0xa9
	cmdSelfTest    = 0xaa
	cmdTestKbd     = 0xab
	cmdDisableKbd  = 0xad
	cmdEnableKbd   = 0xae
	cmdWriteOutAux = 0xd3
	cmdWriteToAux  = 0xd4
	cmdReset       = 0xfe
)

// irqSink is the narrow contract the i8042 needs from the PIC.
type irqSink interface {
	RaiseIRQ(n int)
	LowerIRQ(n int)
}

// Controller is the i8042 plus its two PS/2 children.
type Controller struct {
	mu sync.Mutex

	mode   uint8
	status uint8

	writeExpect uint8 // nonzero: next 0x60 write is data for this command
	lastOut     byte  // last byte popped, for a timing-insensitive read-back

	kbd   *ps2Kbd
	mouse *ps2Mouse

	pic     irqSink
	resetFn func()
}

// New returns a controller wired to pic for IRQ1 (keyboard) and IRQ12
// (mouse), and to resetFn for the 0xFE controller-reset command
// (spec.md §5 "Cancellation": "a reset (triple fault or 0xFE on
// i8042)").
func New(pic irqSink, resetFn func()) *Controller {
	c := &Controller{
		kbd:     newPS2Kbd(),
		mouse:   newPS2Mouse(),
		pic:     pic,
		resetFn: resetFn,
	}
	c.Reset()
	return c
}

func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = modeKBDInt | modeMouseInt | modeXlate
	c.status = statUnlocked | statSelfTest
	c.writeExpect = 0
	c.kbd.reset()
	c.mouse.reset()
}

// InjectKey feeds one host keyboard event (spec.md §6 "Inject
// keyboard byte (is_down, linux_keycode)").
func (c *Controller) InjectKey(isDown bool, linuxKeycode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode&modeDisableKbd != 0 {
		return
	}
	c.kbd.inject(linuxKeycode, isDown)
}

// InjectMouse feeds one host mouse motion/button event (spec.md §6
// "Inject mouse event (dx, dy, dz, buttons)").
func (c *Controller) InjectMouse(dx, dy, dz int32, buttons uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode&modeDisableAux != 0 {
		return
	}
	c.mouse.move(dx, dy, dz, buttons)
}

// Tick drains any ready kbd/mouse bytes into the output-buffer status
// flags, raising IRQ1/IRQ12 as needed. The host calls this once per
// instruction batch alongside the PIT's and RTC's Tick, so an
// injected key asserts its IRQ before the guest's next port read
// rather than only as a side effect of that read (spec.md §8
// "Keyboard latency": "within 10 ms of injection the guest reads
// 0x1E from port 0x60").
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poll()
}

// poll is also invoked implicitly before every port read below so
// IRQ1/IRQ12 timing never depends on Tick cadence alone.
func (c *Controller) poll() {
	if c.status&(statOBF|statAuxOBF) != 0 {
		return // output buffer already full: guest hasn't read it yet
	}
	if c.kbd.hasReady() {
		c.status |= statOBF
		if c.mode&modeKBDInt != 0 {
			c.pic.RaiseIRQ(1)
		}
		return
	}
	if len(c.mouse.queue) > 0 {
		c.status |= statAuxOBF
		if c.mode&modeMouseInt != 0 {
			c.pic.RaiseIRQ(12)
		}
	}
}

// In/Out implement the port I/O contract for 0x60/0x64.

func (c *Controller) In(port uint16) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poll()
	if port == 0x64 {
		return c.status
	}
	switch {
	case c.status&statAuxOBF != 0 && len(c.mouse.queue) > 0:
		b := c.mouse.queue[0]
		c.mouse.queue = c.mouse.queue[1:]
		c.status &^= statAuxOBF
		c.pic.LowerIRQ(12)
		c.lastOut = b
		return b
	case c.status&statOBF != 0 && c.kbd.hasReady():
		b := c.kbd.pop()
		c.status &^= statOBF
		c.pic.LowerIRQ(1)
		c.lastOut = b
		return b
	}
	return c.lastOut
}

func (c *Controller) Out(port uint16, val uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if port == 0x64 {
		c.command(val)
		return
	}
	c.data(val)
}

// command handles a write to the 0x64 command port.
func (c *Controller) command(val uint8) {
	switch val {
	case cmdReadMode:
		c.writeExpect = 0
		c.lastOut = c.mode
		c.status |= statOBF
	case cmdWriteMode:
		c.writeExpect = cmdWriteMode
	case cmdDisableAux:
		c.mode |= modeDisableAux
	case cmdEnableAux:
		c.mode &^= modeDisableAux
	case cmdTestAux:
		c.lastOut = 0x00
		c.status |= statOBF
	case cmdSelfTest:
		c.lastOut = 0x55
		c.status |= statOBF
	case cmdTestKbd:
		c.lastOut = 0x00
		c.status |= statOBF
	case cmdDisableKbd:
		c.mode |= modeDisableKbd
	case cmdEnableKbd:
		c.mode &^= modeDisableKbd
	case cmdWriteToAux:
		c.writeExpect = cmdWriteToAux
	case cmdWriteOutAux:
		c.writeExpect = cmdWriteOutAux
	case cmdReset:
		if c.resetFn != nil {
			c.resetFn()
		}
	default:
		// Unhandled/vendor commands are acknowledged as no-ops.
	}
}

// data handles a write to the 0x60 data port, routed per the pending
// command set by the last 0x64 write (spec.md §4.9 "A command-byte
// state machine selects where a subsequent data write goes").
func (c *Controller) data(val uint8) {
	switch c.writeExpect {
	case cmdWriteMode:
		c.mode = val
	case cmdWriteToAux:
		c.mouse.command(val)
	case cmdWriteOutAux:
		c.mouse.enqueue(val)
	default:
		if c.mode&modeDisableKbd == 0 {
			// A bare data-port write while no command is pending is a
			// keyboard-device command (LEDs, echo, resend): ack it.
			c.kbd.queue = append(c.kbd.queue, fifoByte{val: 0xfa, readyAt: c.kbd.now()})
		}
	}
	c.writeExpect = 0
}
