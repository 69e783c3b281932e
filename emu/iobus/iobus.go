/*
   Port I/O bus.

   Copyright 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a copy
   of this software and associated documentation files (the "Software"), to deal
   in the Software without restriction, including without limitation the rights
   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
   copies of the Software, and to permit persons to whom the Software is
   furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
   SOFTWARE.

   Routes the CPU's byte-wide port IN/OUT (spec.md §4.1's registration
   contract, generalized from MMIO windows to the legacy 64KB port
   space: PIC at 0x20-0x21/0xA0-0xA1, PIT at 0x40-0x43, RTC at
   0x70-0x71, i8042 at 0x60/0x64, NE2000 at its ISA base and base+0x10/
   base+0x1f). Unlike emu/memory.MapRegion (which defers overlap
   checking to the caller, matching the teacher's device-configuration-
   order idiom), Register here rejects an overlapping range outright,
   per spec.md §4.1's "overlap is rejected at registration".
*/

package iobus

import (
	"fmt"
	"sort"
)

// Handler services one port range.
type Handler interface {
	In(port uint16) uint8
	Out(port uint16, val uint8)
}

type rangeEntry struct {
	base, length uint16
	handler      Handler
}

// Bus is a port-range router implementing the CPU's ioPorts contract.
type Bus struct {
	ranges []rangeEntry
}

// New returns an empty bus; every unmapped port reads as OpenBus and
// silently discards writes.
func New() *Bus {
	return &Bus{}
}

// OpenBus is returned for reads from an unregistered port, matching
// real PC hardware's floating-bus behavior (spec.md §4.1).
const OpenBus uint8 = 0xff

func rangesOverlap(a, b rangeEntry) bool {
	aEnd := uint32(a.base) + uint32(a.length)
	bEnd := uint32(b.base) + uint32(b.length)
	return uint32(a.base) < bEnd && uint32(b.base) < aEnd
}

// Register binds handler to the half-open port range
// [base, base+length). It returns an error without mutating the bus
// if the range overlaps one already registered.
func (b *Bus) Register(base, length uint16, handler Handler) error {
	if length == 0 {
		return fmt.Errorf("iobus: zero-length range at port %#x", base)
	}
	cand := rangeEntry{base: base, length: length, handler: handler}
	for _, r := range b.ranges {
		if rangesOverlap(cand, r) {
			return fmt.Errorf("iobus: port range [%#x,%#x) overlaps existing [%#x,%#x)",
				base, uint32(base)+uint32(length), r.base, uint32(r.base)+uint32(r.length))
		}
	}
	b.ranges = append(b.ranges, cand)
	sort.Slice(b.ranges, func(i, j int) bool { return b.ranges[i].base < b.ranges[j].base })
	return nil
}

// MustRegister is Register but panics on error, for boot-time wiring
// where an overlapping device map is a programming mistake, not a
// runtime condition to recover from.
func (b *Bus) MustRegister(base, length uint16, handler Handler) {
	if err := b.Register(base, length, handler); err != nil {
		panic(err)
	}
}

func (b *Bus) find(port uint16) Handler {
	for _, r := range b.ranges {
		if port >= r.base && port < r.base+r.length {
			return r.handler
		}
	}
	return nil
}

// In implements the CPU's ioPorts contract.
func (b *Bus) In(port uint16) uint8 {
	if h := b.find(port); h != nil {
		return h.In(port)
	}
	return OpenBus
}

// Out implements the CPU's ioPorts contract.
func (b *Bus) Out(port uint16, val uint8) {
	if h := b.find(port); h != nil {
		h.Out(port, val)
	}
}
