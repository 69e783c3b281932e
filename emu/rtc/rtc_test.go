package rtc

import (
	"testing"
	"time"
)

func TestIndexWriteDisablesNMI(t *testing.T) {
	r := New(nil)
	r.Out(0x70, 0x80|regSeconds)
	if r.NMIEnabled() {
		t.Errorf("index write with bit7 set should disable NMI")
	}
	r.Out(0x70, regSeconds)
	if !r.NMIEnabled() {
		t.Errorf("index write with bit7 clear should re-enable NMI")
	}
}

func TestSecondsRegisterBCD(t *testing.T) {
	r := New(nil)
	r.now = func() time.Time {
		return time.Date(2026, time.July, 31, 13, 45, 37, 0, time.UTC)
	}
	r.Out(0x70, regSeconds)
	if got := r.In(0x71); got != 0x37 {
		t.Errorf("seconds (BCD) got %#x wanted 0x37", got)
	}
	r.Out(0x70, regMinutes)
	if got := r.In(0x71); got != 0x45 {
		t.Errorf("minutes (BCD) got %#x wanted 0x45", got)
	}
}

func TestBinaryModeDisablesBCDEncoding(t *testing.T) {
	r := New(nil)
	r.now = func() time.Time {
		return time.Date(2026, time.July, 31, 13, 45, 37, 0, time.UTC)
	}
	r.Out(0x70, regB)
	r.Out(0x71, regB24Hr|regBDM)
	r.Out(0x70, regSeconds)
	if got := r.In(0x71); got != 37 {
		t.Errorf("seconds (binary) got %d wanted 37", got)
	}
}

func TestCMOSRAMRoundTrip(t *testing.T) {
	r := New(nil)
	r.Out(0x70, 0x20)
	r.Out(0x71, 0x5a)
	r.Out(0x70, 0x20)
	if got := r.In(0x71); got != 0x5a {
		t.Errorf("CMOS byte round-trip got %#x wanted 0x5a", got)
	}
}

type fakePIC struct{ count int }

func (f *fakePIC) RaiseIRQ(int) { f.count++ }
func (f *fakePIC) LowerIRQ(int) {}

func TestPeriodicInterruptFiresWhenEnabled(t *testing.T) {
	pic := &fakePIC{}
	r := New(pic)
	r.Out(0x70, regA)
	r.Out(0x71, 0x06) // rate select -> period 64
	r.Out(0x70, regB)
	r.Out(0x71, regB24Hr|regBPIE)
	r.Tick(64)
	if pic.count == 0 {
		t.Errorf("expected periodic IRQ8 after reaching the rate-select period")
	}
}
