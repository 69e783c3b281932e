/*
   Thin port-I/O adapters for devices whose native API predates the
   generic iobus.Handler contract.

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

package host

import "github.com/rcornwell/x86pc/emu/pic"

// picMasterAdapter and picSlaveAdapter let the two halves of one
// pic.Pair each be registered as an independent iobus.Handler: the
// Pair exposes InMaster/OutMaster (0x20-0x21) and InSlave/OutSlave
// (0xA0-0xA1) as four separate methods rather than one In/Out pair,
// since the two 8259s decode disjoint port ranges on real hardware.
type picMasterAdapter struct{ p *pic.Pair }

func (a picMasterAdapter) In(port uint16) uint8     { return a.p.InMaster(port) }
func (a picMasterAdapter) Out(port uint16, v uint8) { a.p.OutMaster(port, v) }

type picSlaveAdapter struct{ p *pic.Pair }

func (a picSlaveAdapter) In(port uint16) uint8     { return a.p.InSlave(port) }
func (a picSlaveAdapter) Out(port uint16, v uint8) { a.p.OutSlave(port, v) }

// pciStub answers the PCI configuration mechanism's two ports (spec.md
// §6 "0x0CF8/0x0CFC PCI config (stub - returns 0xFF for all reads)");
// this machine has no PCI bus, only the fixed ISA devices above.
type pciStub struct{}

func (pciStub) In(uint16) uint8     { return 0xff }
func (pciStub) Out(uint16, uint8) {}
