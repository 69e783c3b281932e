/*
x86pc Port-mapped device interface

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
*/

// Package device holds the few sentinels config parsing shares with
// the rest of the tree. The mainframe teacher's Device/IRQRaiser/
// Ticker interfaces here were a channel-era sketch written before the
// PIC, PIT, RTC, i8042, NE2000 and disk-BIOS packages existed; each of
// those now declares its own narrower, concretely-shaped interface
// (irqSink, iobus.Handler, the cpu package's interrupter) right next
// to the code that needs it, so this shared interface never got an
// implementer and is dropped rather than kept as dead abstraction.
package device

// NoDev marks a configuration option line with no device/port address
// attached, the same role it played for the mainframe's channel/unit
// address space; PC boot-configuration keywords (ram size, BIOS path,
// drive image, NE2000 MAC) are addressless, so every line in
// config/machineconfig resolves to this sentinel.
const NoDev uint16 = 0xffff
