/*
   BIOS ROM shadow at the top of the 32-bit address space.

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

   The CPU's post-reset CS is selector 0xF000 based at 0xFFFF0000 (the
   386's documented reset state), so the very first fetch after reset
   lands at linear 0xFFFFFFF0, not at the conventional 0xF0000 boot
   configuration names (spec.md §6 "BIOS blob and load address
   (typically 0xF0000)"). Real chipsets decode the BIOS flash at both
   addresses; this Region mirrors that by serving the same image
   read-only at the top-of-memory alias, while Machine.Boot also
   copies it into plain RAM at the conventional address for whatever
   the BIOS itself expects to find there once it reloads CS.
*/

package host

// romRegion is a read-only image; writes are dropped, matching real
// ROM/flash that a BIOS doesn't shadow into RAM until it explicitly
// copies itself out.
type romRegion struct {
	data []byte
}

func (r *romRegion) ReadByte(addr uint32) uint8 {
	if int(addr) < len(r.data) {
		return r.data[addr]
	}
	return 0xff
}

func (r *romRegion) WriteByte(uint32, uint8) {}

// topOfMemoryShadowBase returns the physical base at which an image
// of length n is aliased at the top of the 32-bit address space, the
// wraparound arithmetic naturally landing on 0xFFFF0000 for the
// standard 64KB BIOS image size.
func topOfMemoryShadowBase(n int) uint32 {
	return uint32(0) - uint32(n)
}
