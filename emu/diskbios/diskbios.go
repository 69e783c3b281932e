/*
   Legacy disk BIOS (INT 13h) hook.

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

   Services INT 13h (00h reset, 02h/03h CHS read/write, 08h get
   params, 15h drive type, 41h/42h/43h LBA extensions) for up to five
   drives, directly against guest physical memory at ES:BX, completing
   synchronously (spec.md §4.11). Installed via cpu.CPUState.SetIntHook
   rather than a real BIOS ROM image, grounded on the original's
   diskhandler(cpu) direct-hook pattern (original_source/src/disk.h)
   and its five-drive layout (original_source/src/diskui.h's
   DRIVE_FDD_A/B, DRIVE_HDD_C/D, DRIVE_CDROM_E).
*/

package diskbios

import (
	"encoding/binary"

	"github.com/rcornwell/x86pc/emu/cpu"
)

// Kind identifies a drive's media type, which governs its BIOS drive
// number range (floppies 0x00-0x7f, hard/CD-ROM 0x80-0xff) and sector
// size.
type Kind int

const (
	KindFloppy Kind = iota
	KindHardDisk
	KindCDROM
)

// Drive count and index assignment, matching the original's five
// fixed drive slots.
const (
	DriveFDD0 = 0
	DriveFDD1 = 1
	DriveHDD0 = 2
	DriveHDD1 = 3
	DriveCDROM = 4
	DriveCount = 5
)

const (
	sectorSizeStd   = 512
	sectorSizeCDROM = 2048
)

// Drive is one removable or fixed disk image backing a BIOS drive
// slot.
type Drive struct {
	Kind     Kind
	Inserted bool
	Filename string

	data       []byte
	sectorSize int
	cylinders  int
	heads      int
	sectors    int // sectors per track
}

func sectorSizeFor(k Kind) int {
	if k == KindCDROM {
		return sectorSizeCDROM
	}
	return sectorSizeStd
}

// geometryFor derives a CHS geometry from an image's total sector
// count. Floppies use the handful of standard PC geometries; hard
// disks use the common 16-head/63-sector-per-track BIOS translation
// (spec.md §4.11: "Geometry is computed from image size"); CD-ROM
// images don't expose CHS geometry to the BIOS (they're addressed via
// the LBA extensions) so they report a single dummy track.
func geometryFor(kind Kind, totalSectors int) (cyl, heads, spt int) {
	switch kind {
	case KindCDROM:
		return 1, 1, 1
	case KindFloppy:
		switch totalSectors {
		case 2880: // 1.44MB
			return 80, 2, 18
		case 2400: // 1.2MB
			return 80, 2, 15
		case 1440: // 720KB
			return 80, 2, 9
		case 720: // 360KB
			return 40, 2, 9
		default:
			return 80, 2, 18
		}
	default: // hard disk
		const h, s = 16, 63
		return (totalSectors + h*s - 1) / (h * s), h, s
	}
}

// Insert mounts image as the backing store for this drive slot.
func (d *Drive) Insert(kind Kind, image []byte, filename string) {
	d.Kind = kind
	d.data = image
	d.Filename = filename
	d.sectorSize = sectorSizeFor(kind)
	total := len(image) / d.sectorSize
	d.cylinders, d.heads, d.sectors = geometryFor(kind, total)
	d.Inserted = true
}

// Eject unmounts any image from this drive slot.
func (d *Drive) Eject() {
	d.data = nil
	d.Filename = ""
	d.Inserted = false
}

func (d *Drive) totalSectors() int {
	if d.sectorSize == 0 {
		return 0
	}
	return len(d.data) / d.sectorSize
}

// Controller owns the five BIOS drive slots and installs itself as an
// INT 13h hook.
type Controller struct {
	Drives [DriveCount]Drive
}

// New returns a controller with all five slots empty; call
// Drives[i].Insert to mount an image.
func New() *Controller {
	return &Controller{}
}

// Attach installs this controller's INT 13h handler on c.
func (ctl *Controller) Attach(c *cpu.CPUState) {
	c.SetIntHook(0x13, ctl.handle)
}

// biosDriveNumber maps a BIOS DL value to a drive slot, or -1.
func biosDriveNumber(dl uint8) int {
	switch {
	case dl == 0x00:
		return DriveFDD0
	case dl == 0x01:
		return DriveFDD1
	case dl == 0x80:
		return DriveHDD0
	case dl == 0x81:
		return DriveHDD1
	case dl == 0xe0:
		return DriveCDROM
	default:
		return -1
	}
}

func regByte(v uint32, hi bool) uint8 {
	if hi {
		return uint8(v >> 8)
	}
	return uint8(v)
}

func setRegByte(v uint32, hi bool, b uint8) uint32 {
	if hi {
		return v&0xffff00ff | uint32(b)<<8
	}
	return v&0xffffff00 | uint32(b)
}

// status writes the BIOS AH/CF completion convention: AH = code (0 on
// success), CF = code != 0.
func (ctl *Controller) status(c *cpu.CPUState, code uint8) {
	ax := c.Reg(cpu.RegEAX)
	c.SetReg(cpu.RegEAX, setRegByte(ax, true, code))
	c.SetCF(code != 0)
}

const (
	statusOK         = 0x00
	statusBadCommand = 0x01
	statusBadSector  = 0x04
	statusNoMedia    = 0x80
)

// handle is the cpu.SetIntHook callback for vector 0x13.
func (ctl *Controller) handle(c *cpu.CPUState) bool {
	eax := c.Reg(cpu.RegEAX)
	edx := c.Reg(cpu.RegEDX)
	ah := regByte(eax, true)
	dl := regByte(edx, false)

	drv := biosDriveNumber(dl)

	switch ah {
	case 0x00: // reset disk system
		ctl.status(c, statusOK)
	case 0x02:
		ctl.chsTransfer(c, drv, false)
	case 0x03:
		ctl.chsTransfer(c, drv, true)
	case 0x08:
		ctl.getParams(c, drv)
	case 0x15:
		ctl.driveType(c, drv)
	case 0x41:
		ctl.checkExtensions(c, drv)
	case 0x42:
		ctl.extendedTransfer(c, drv, false)
	case 0x43:
		ctl.extendedTransfer(c, drv, true)
	default:
		ctl.status(c, statusBadCommand)
	}
	return true
}

func (ctl *Controller) drive(idx int) (*Drive, bool) {
	if idx < 0 || idx >= DriveCount || !ctl.Drives[idx].Inserted {
		return nil, false
	}
	return &ctl.Drives[idx], true
}

// transferGuestToHost and transferHostToGuest move bytes between the
// guest's ES:BX buffer and a host-side slice, honoring the guest's own
// segmentation limits (spec.md §4.11 "with appropriate segmentation
// checks").
func transferGuestToHost(c *cpu.CPUState, bx uint16, dst []byte) bool {
	for i := range dst {
		b, ex := c.ReadByte(cpu.SegES, uint32(bx)+uint32(i))
		if ex != nil {
			return false
		}
		dst[i] = b
	}
	return true
}

func transferHostToGuest(c *cpu.CPUState, bx uint16, src []byte) bool {
	for i, b := range src {
		if ex := c.WriteByte(cpu.SegES, uint32(bx)+uint32(i), b); ex != nil {
			return false
		}
	}
	return true
}

// chsTransfer services AH=02h/03h (spec.md §4.11): CH=cylinder low 8
// bits, CL bits 6-7 = cylinder high bits, CL bits 0-5 = sector
// (1-based), DH = head, AL = sector count.
func (ctl *Controller) chsTransfer(c *cpu.CPUState, drv int, write bool) {
	d, ok := ctl.drive(drv)
	if !ok {
		ctl.status(c, statusNoMedia)
		return
	}
	eax := c.Reg(cpu.RegEAX)
	ecx := c.Reg(cpu.RegECX)
	edx := c.Reg(cpu.RegEDX)
	ebx := c.Reg(cpu.RegEBX)

	al := regByte(eax, false)
	ch := regByte(ecx, true)
	cl := regByte(ecx, false)
	dh := regByte(edx, true)
	bx := uint16(ebx)

	cyl := int(ch) | int(cl&0xc0)<<2
	sector := int(cl & 0x3f)
	head := int(dh)
	count := int(al)

	if sector < 1 || head >= d.heads || cyl >= d.cylinders || count == 0 {
		ctl.status(c, statusBadSector)
		return
	}

	lba := (cyl*d.heads+head)*d.sectors + (sector - 1)
	ctl.lbaTransfer(c, d, lba, count, bx, write)
}

// lbaTransfer is the shared CHS/extended sector-range mover.
func (ctl *Controller) lbaTransfer(c *cpu.CPUState, d *Drive, lba, count int, bx uint16, write bool) {
	if lba < 0 || lba+count > d.totalSectors() {
		ctl.status(c, statusBadSector)
		return
	}
	off := lba * d.sectorSize
	length := count * d.sectorSize
	if write {
		buf := make([]byte, length)
		if !transferGuestToHost(c, bx, buf) {
			ctl.status(c, statusBadSector)
			return
		}
		copy(d.data[off:off+length], buf)
	} else {
		if !transferHostToGuest(c, bx, d.data[off:off+length]) {
			ctl.status(c, statusBadSector)
			return
		}
	}
	eax := c.Reg(cpu.RegEAX)
	c.SetReg(cpu.RegEAX, setRegByte(eax, false, uint8(count)))
	ctl.status(c, statusOK)
}

// getParams services AH=08h: returns CHS geometry in CH/CL/DH, number
// of drives in DL.
func (ctl *Controller) getParams(c *cpu.CPUState, drv int) {
	d, ok := ctl.drive(drv)
	if !ok {
		ctl.status(c, statusNoMedia)
		return
	}
	maxCyl := d.cylinders - 1
	maxHead := d.heads - 1
	ch := uint8(maxCyl)
	cl := uint8(d.sectors&0x3f) | uint8((maxCyl>>2)&0xc0)

	ecx := c.Reg(cpu.RegECX)
	edx := c.Reg(cpu.RegEDX)
	ecx = setRegByte(ecx, true, ch)
	ecx = setRegByte(ecx, false, cl)
	edx = setRegByte(edx, true, uint8(maxHead))
	edx = setRegByte(edx, false, DriveCount)
	c.SetReg(cpu.RegECX, ecx)
	c.SetReg(cpu.RegEDX, edx)
	ctl.status(c, statusOK)
}

// driveType services AH=15h: AH on return carries the type code (0 =
// not present, 1 = floppy no change-line, 2 = floppy with change-line,
// 3 = fixed disk with sector count in CX:DX).
func (ctl *Controller) driveType(c *cpu.CPUState, drv int) {
	d, ok := ctl.drive(drv)
	if !ok {
		eax := c.Reg(cpu.RegEAX)
		c.SetReg(cpu.RegEAX, setRegByte(eax, true, 0))
		c.SetCF(true)
		return
	}
	var code uint8
	switch d.Kind {
	case KindFloppy:
		code = 2
	default:
		code = 3
	}
	if code == 3 {
		total := d.totalSectors()
		c.SetReg(cpu.RegECX, uint32(total>>16))
		c.SetReg(cpu.RegEDX, uint32(total&0xffff))
	}
	eax := c.Reg(cpu.RegEAX)
	c.SetReg(cpu.RegEAX, setRegByte(eax, true, code))
	c.SetCF(false)
}

const extSignature = 0xaa55

// checkExtensions services AH=41h: BX must hold 0x55AA on entry; on
// success returns BX=0xAA55, CX=support bitmap, CF clear.
func (ctl *Controller) checkExtensions(c *cpu.CPUState, drv int) {
	ebx := c.Reg(cpu.RegEBX)
	if uint16(ebx) != 0x55aa {
		ctl.status(c, statusBadCommand)
		return
	}
	if _, ok := ctl.drive(drv); !ok {
		ctl.status(c, statusNoMedia)
		return
	}
	c.SetReg(cpu.RegEBX, ebx&0xffff0000|extSignature)
	c.SetReg(cpu.RegECX, 0x0001) // device access extensions only
	ctl.status(c, statusOK)
}

// diskAddressPacket is the INT 13h extended-transfer parameter block
// at DS:SI.
type diskAddressPacket struct {
	count  uint16
	bufOff uint16
	bufSeg uint16
	lba    uint64
}

func readDAP(c *cpu.CPUState, si uint32) (diskAddressPacket, bool) {
	var raw [16]byte
	for i := range raw {
		b, ex := c.ReadByte(cpu.SegDS, si+uint32(i))
		if ex != nil {
			return diskAddressPacket{}, false
		}
		raw[i] = b
	}
	dap := diskAddressPacket{
		count:  binary.LittleEndian.Uint16(raw[2:4]),
		bufOff: binary.LittleEndian.Uint16(raw[4:6]),
		bufSeg: binary.LittleEndian.Uint16(raw[6:8]),
		lba:    binary.LittleEndian.Uint64(raw[8:16]),
	}
	return dap, true
}

// extendedTransfer services AH=42h/43h using the disk address packet
// at DS:SI (spec.md §4.11's LBA extensions). The real BIOS convention
// has the packet's own bufSeg:bufOff pointer name the transfer buffer
// independent of ES; this CPU model's segment cache has no distinct
// real-mode (selector<<4) load path, only the protected-mode
// descriptor lookup loadSegment always performs (emu/cpu/segment.go),
// so as a deliberate simplification the transfer still goes through
// the guest's currently-loaded ES segment at bufOff, which matches
// real BIOS behavior whenever the caller's ES already equals bufSeg
// (the common case when ES:BX and DS:SI share a segment).
func (ctl *Controller) extendedTransfer(c *cpu.CPUState, drv int, write bool) {
	d, ok := ctl.drive(drv)
	if !ok {
		ctl.status(c, statusNoMedia)
		return
	}
	esi := c.Reg(cpu.RegESI)
	dap, ok := readDAP(c, esi)
	if !ok {
		ctl.status(c, statusBadSector)
		return
	}
	ctl.lbaTransfer(c, d, int(dap.lba), int(dap.count), dap.bufOff, write)
}
