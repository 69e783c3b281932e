/*
   MC146818 real-time clock / CMOS RAM.

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

   Index register 0x70 (a write with bit 7 set also disables NMI),
   data register 0x71. 128 bytes of battery-backed CMOS, registers
   0x00-0x09 holding time-of-day in BCD or binary per register B's
   DM bit, register A's rate-select driving the periodic interrupt on
   IRQ8 when register B's PIE bit is set.
*/

package rtc

import (
	"sync"
	"time"
)

const (
	regSeconds = 0x00
	regMinutes = 0x02
	regHours   = 0x04
	regWeekday = 0x06
	regDay     = 0x07
	regMonth   = 0x08
	regYear    = 0x09
	regA       = 0x0a
	regB       = 0x0b
	regC       = 0x0c
	regD       = 0x0d
)

const (
	regAUIP = 1 << 7 // update-in-progress

	regBSET  = 1 << 7 // clock update halted while set
	regBPIE  = 1 << 6 // periodic interrupt enable
	regBAIE  = 1 << 5 // alarm interrupt enable
	regBUIE  = 1 << 4 // update-ended interrupt enable
	regBDM   = 1 << 2 // data mode: 1 = binary, 0 = BCD
	regB24Hr = 1 << 1

	regCIRQF = 1 << 7
	regCPF   = 1 << 6
	regCAF   = 1 << 5
	regCUF   = 1 << 4
)

// irqSink is the narrow contract the RTC needs to assert IRQ8.
type irqSink interface {
	RaiseIRQ(n int)
	LowerIRQ(n int)
}

// RTC is the CMOS index/data pair and its 128-byte battery-backed RAM.
type RTC struct {
	mu    sync.Mutex
	index uint8
	ram   [128]byte
	nmiOK bool // NMI enabled (index bit7 clears this)

	pic        irqSink
	periodTick int // ticks remaining until the next periodic pulse
	now        func() time.Time
}

// New returns an RTC seeded from the host wall clock, periodic
// interrupts (if enabled by the guest) routed to IRQ8 on pic.
func New(pic irqSink) *RTC {
	r := &RTC{pic: pic, now: time.Now}
	r.Reset()
	return r
}

func (r *RTC) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ram = [128]byte{}
	r.ram[regB] = regB24Hr
	r.ram[regD] = 0x80 // battery good
	r.nmiOK = true
	r.index = 0
	r.syncClock()
}

func toBCD(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}

// syncClock loads the current host time into the TOD registers,
// honoring register B's binary/BCD mode.
func (r *RTC) syncClock() {
	t := r.now()
	binary := r.ram[regB]&regBDM != 0
	enc := func(v int) byte {
		if binary {
			return byte(v)
		}
		return toBCD(v)
	}
	r.ram[regSeconds] = enc(t.Second())
	r.ram[regMinutes] = enc(t.Minute())
	r.ram[regHours] = enc(t.Hour()) // 24-hour only: register B forces 24hr mode here
	r.ram[regWeekday] = enc(int(t.Weekday()) + 1)
	r.ram[regDay] = enc(t.Day())
	r.ram[regMonth] = enc(int(t.Month()))
	r.ram[regYear] = enc(t.Year() % 100)
}

// In/Out implement the port I/O contract for 0x70/0x71.

func (r *RTC) In(port uint16) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if port == 0x70 {
		return r.index
	}
	idx := r.index & 0x7f
	if idx <= regYear {
		r.syncClock()
	}
	v := r.ram[idx]
	if idx == regC {
		r.ram[regC] = 0 // reading register C clears the status flags
	}
	return v
}

func (r *RTC) Out(port uint16, val uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if port == 0x70 {
		r.index = val & 0x7f
		r.nmiOK = val&0x80 == 0
		return
	}
	idx := r.index & 0x7f
	r.ram[idx] = val
}

// Tick advances the periodic-interrupt divider by n ticks; the host
// calls this the same way it drives the PIT (spec.md §4.8 "Periodic
// interrupt on IRQ8 when register B enables it").
func (r *RTC) Tick(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ram[regB]&regBPIE == 0 {
		return
	}
	rate := r.ram[regA] & 0x0f
	if rate == 0 {
		return // periodic interrupt disabled by rate select
	}
	period := 1 << rate // coarse divider approximation of the 32768 Hz source
	r.periodTick += n
	if r.periodTick < period {
		return
	}
	r.periodTick -= period
	r.ram[regC] |= regCPF | regCIRQF
	if r.pic != nil {
		r.pic.RaiseIRQ(8)
		r.pic.LowerIRQ(8)
	}
}

// NMIEnabled reports whether the last index write left NMI enabled.
func (r *RTC) NMIEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nmiOK
}
