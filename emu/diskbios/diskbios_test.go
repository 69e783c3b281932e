package diskbios

import (
	"testing"

	"github.com/rcornwell/x86pc/emu/cpu"
	mem "github.com/rcornwell/x86pc/emu/memory"
)

type stubIO struct{}

func (stubIO) In(uint16) uint8    { return 0xff }
func (stubIO) Out(uint16, uint8) {}

// newTestCPU gives the guest 1MB of RAM and builds a freshly reset
// CPU: real mode, DS/ES/SS all based at 0 with a 64KB limit, matching
// the power-on state a disk BIOS hook actually runs under (spec.md §5's
// reset vector).
func newTestCPU() *cpu.CPUState {
	mem.SetSize(1024)
	return cpu.New(16, false, stubIO{})
}

func newFloppyImage(sectors int) []byte {
	img := make([]byte, sectors*512)
	for i := range img {
		img[i] = byte(i)
	}
	return img
}

func TestResetReturnsSuccess(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	ctl.Attach(c)

	c.SetReg(cpu.RegEAX, 0x0000)
	c.SetReg(cpu.RegEDX, 0x0000)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF != 0 {
		t.Errorf("reset should clear CF")
	}
	if ah := uint8(c.Reg(cpu.RegEAX) >> 8); ah != 0 {
		t.Errorf("reset AH got %#x wanted 0", ah)
	}
}

func TestGetParamsReportsGeometry(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	ctl.Drives[DriveFDD0].Insert(KindFloppy, newFloppyImage(2880), "a.img")
	ctl.Attach(c)

	c.SetReg(cpu.RegEAX, 0x0800)
	c.SetReg(cpu.RegEDX, 0x0000)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF != 0 {
		t.Fatalf("get params should succeed for an inserted floppy")
	}
	dh := uint8(c.Reg(cpu.RegEDX) >> 8)
	if dh != 1 { // maxHead = heads-1 = 1 for a 1.44MB floppy
		t.Errorf("max head got %d wanted 1", dh)
	}
	cl := uint8(c.Reg(cpu.RegECX))
	if cl&0x3f != 18 {
		t.Errorf("sectors per track got %d wanted 18", cl&0x3f)
	}
}

func TestGetParamsNoMediaFails(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	ctl.Attach(c)

	c.SetReg(cpu.RegEAX, 0x0800)
	c.SetReg(cpu.RegEDX, 0x0001) // fdd1, not inserted
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF == 0 {
		t.Errorf("get params on an empty drive should set CF")
	}
}

func TestCHSReadRoundTrip(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	img := newFloppyImage(2880)
	ctl.Drives[DriveFDD0].Insert(KindFloppy, img, "a.img")
	ctl.Attach(c)

	// Read cylinder 0, head 0, sector 1, 1 sector into ES:0x1000.
	c.SetReg(cpu.RegEAX, 0x0201) // AH=02h, AL=1 sector
	c.SetReg(cpu.RegECX, 0x0001) // CH=0, CL=1 (sector 1)
	c.SetReg(cpu.RegEDX, 0x0000) // DH=0 head, DL=0 drive
	c.SetReg(cpu.RegEBX, 0x1000)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF != 0 {
		t.Fatalf("CHS read should succeed")
	}
	for i := 0; i < 512; i++ {
		b, ex := c.ReadByte(cpu.SegES, 0x1000+uint32(i))
		if ex != nil {
			t.Fatalf("unexpected fault reading back transferred data: %v", ex)
		}
		if b != img[i] {
			t.Fatalf("byte %d: got %#x wanted %#x", i, b, img[i])
		}
	}
}

func TestCHSWriteRoundTrip(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	img := newFloppyImage(2880)
	ctl.Drives[DriveFDD0].Insert(KindFloppy, img, "a.img")
	ctl.Attach(c)

	for i := 0; i < 512; i++ {
		if ex := c.WriteByte(cpu.SegES, 0x2000+uint32(i), byte(0xaa)); ex != nil {
			t.Fatalf("setup write faulted: %v", ex)
		}
	}

	c.SetReg(cpu.RegEAX, 0x0301) // AH=03h write, AL=1 sector
	c.SetReg(cpu.RegECX, 0x0001)
	c.SetReg(cpu.RegEDX, 0x0000)
	c.SetReg(cpu.RegEBX, 0x2000)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF != 0 {
		t.Fatalf("CHS write should succeed")
	}
	for i := 0; i < 512; i++ {
		if ctl.Drives[DriveFDD0].data[i] != 0xaa {
			t.Fatalf("disk byte %d not updated, got %#x", i, ctl.Drives[DriveFDD0].data[i])
		}
	}
}

func TestBadSectorFailsCleanly(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	ctl.Drives[DriveFDD0].Insert(KindFloppy, newFloppyImage(2880), "a.img")
	ctl.Attach(c)

	c.SetReg(cpu.RegEAX, 0x0201)
	c.SetReg(cpu.RegECX, 0x0000) // sector 0 is invalid (1-based)
	c.SetReg(cpu.RegEDX, 0x0000)
	c.SetReg(cpu.RegEBX, 0x1000)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF == 0 {
		t.Errorf("sector 0 should be rejected with CF set")
	}
	if ah := uint8(c.Reg(cpu.RegEAX) >> 8); ah != statusBadSector {
		t.Errorf("AH got %#x wanted %#x", ah, statusBadSector)
	}
}

func TestDriveTypeHardDiskReportsSectorCount(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	img := newFloppyImage(100) // 100 sectors, placed on the HDD slot
	ctl.Drives[DriveHDD0].Insert(KindHardDisk, img, "c.img")
	ctl.Attach(c)

	c.SetReg(cpu.RegEAX, 0x1500)
	c.SetReg(cpu.RegEDX, 0x0080)
	c.Int(0x13)

	ah := uint8(c.Reg(cpu.RegEAX) >> 8)
	if ah != 3 {
		t.Errorf("drive type got %d wanted 3 (fixed disk)", ah)
	}
	total := c.Reg(cpu.RegECX)<<16 | c.Reg(cpu.RegEDX)&0xffff
	if total != 100 {
		t.Errorf("reported sector count got %d wanted 100", total)
	}
}

func TestExtendedTransferReadsViaDAP(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	img := newFloppyImage(2880)
	ctl.Drives[DriveFDD0].Insert(KindFloppy, img, "a.img")
	ctl.Attach(c)

	// Build a 16-byte disk address packet at DS:0x500: count=1,
	// buf off/seg=0x3000/0, lba=0.
	dapAddr := uint32(0x500)
	must := func(ex *cpu.Exception) {
		if ex != nil {
			t.Fatalf("setup fault: %v", ex)
		}
	}
	must(c.WriteByte(cpu.SegDS, dapAddr+0, 0x10))
	must(c.WriteByte(cpu.SegDS, dapAddr+1, 0x00))
	must(c.WriteByte(cpu.SegDS, dapAddr+2, 0x01)) // count lo
	must(c.WriteByte(cpu.SegDS, dapAddr+3, 0x00)) // count hi
	must(c.WriteByte(cpu.SegDS, dapAddr+4, 0x00)) // buf off lo
	must(c.WriteByte(cpu.SegDS, dapAddr+5, 0x30)) // buf off hi -> 0x3000
	must(c.WriteByte(cpu.SegDS, dapAddr+6, 0x00)) // buf seg lo
	must(c.WriteByte(cpu.SegDS, dapAddr+7, 0x00)) // buf seg hi
	for i := 8; i < 16; i++ {
		must(c.WriteByte(cpu.SegDS, dapAddr+uint32(i), 0))
	}

	c.SetReg(cpu.RegEAX, 0x4200)
	c.SetReg(cpu.RegEDX, 0x0000)
	c.SetReg(cpu.RegESI, dapAddr)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF != 0 {
		t.Fatalf("extended read should succeed")
	}
	b, ex := c.ReadByte(cpu.SegES, 0x3000)
	if ex != nil {
		t.Fatalf("unexpected fault: %v", ex)
	}
	if b != img[0] {
		t.Errorf("extended transfer byte 0 got %#x wanted %#x", b, img[0])
	}
}

func TestUnknownServiceFails(t *testing.T) {
	c := newTestCPU()
	ctl := New()
	ctl.Attach(c)

	c.SetReg(cpu.RegEAX, 0xff00)
	c.Int(0x13)

	if c.Eflags()&cpu.FlagCF == 0 {
		t.Errorf("unknown service should set CF")
	}
}
