/*
   VGA RAM window.

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

   Plain byte-addressable RAM registered as an emu/memory.Region
   (spec.md §6 "VGA RAM size" boot parameter, §4.1's MMIO-router
   design): register-level VGA behavior at ports 0x3B0-0x3DF is
   explicitly "handled by external collaborator", but the window guest
   writes land in still has to exist for that collaborator, and for
   Machine.ReadVGA/ReadTextBuffer, to have something to read.
*/

package host

import "sync"

const (
	vgaBase        uint32 = 0xa0000
	textBufferBase uint32 = 0xb8000
)

type vgaRegion struct {
	mu  sync.Mutex
	ram []byte
}

func newVGARegion(size int) *vgaRegion {
	return &vgaRegion{ram: make([]byte, size)}
}

func (v *vgaRegion) ReadByte(addr uint32) uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if int(addr) >= len(v.ram) {
		return 0xff
	}
	return v.ram[addr]
}

func (v *vgaRegion) WriteByte(addr uint32, val uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if int(addr) < len(v.ram) {
		v.ram[addr] = val
	}
}

// snapshot copies size bytes starting at offset for a display
// collaborator; out-of-range requests are clamped rather than
// panicking, since the caller's VGA geometry assumptions (text mode
// vs. a given graphics mode) are independent of the window's actual
// configured size.
func (v *vgaRegion) snapshot(offset, size uint32) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if int(offset) >= len(v.ram) {
		return nil
	}
	end := offset + size
	if int(end) > len(v.ram) {
		end = uint32(len(v.ram))
	}
	out := make([]byte, end-offset)
	copy(out, v.ram[offset:end])
	return out
}
