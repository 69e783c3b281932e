package pit

import "testing"

type fakePIC struct {
	raised, lowered []int
}

func (f *fakePIC) RaiseIRQ(n int) { f.raised = append(f.raised, n) }
func (f *fakePIC) LowerIRQ(n int) { f.lowered = append(f.lowered, n) }

func TestChannel0ModeTwoFiresIRQ0(t *testing.T) {
	pic := &fakePIC{}
	p := New(pic)
	p.Out(0x43, 0x34) // channel 0, lobyte/hibyte, mode 2
	p.Out(0x40, 10) // reload lo byte
	p.Out(0x40, 0)  // reload hi byte
	p.Tick(11)      // 10 ticks to reach zero, one more to fire and reload
	if len(pic.raised) == 0 {
		t.Fatalf("expected IRQ0 to fire after 11 ticks with reload=10")
	}
}

func TestLatchCountRoundTrips(t *testing.T) {
	p := New(nil)
	p.Out(0x43, 0x34) // channel 0, lobyte/hibyte, mode 2
	p.Out(0x40, 0x34)
	p.Out(0x40, 0x12) // reload = 0x1234
	p.Tick(4)         // count now 0x1234-4 = 0x1230
	p.Out(0x43, 0x00) // latch channel 0 count
	lo := p.In(0x40)
	hi := p.In(0x40)
	got := uint16(lo) | uint16(hi)<<8
	want := uint16(0x1234 - 4)
	if got != want {
		t.Errorf("latched count got %#x wanted %#x", got, want)
	}
}

func TestModeZeroFiresOnce(t *testing.T) {
	pic := &fakePIC{}
	p := New(pic)
	p.Out(0x43, 0x30) // channel 0, lobyte/hibyte, mode 0
	p.Out(0x40, 5)
	p.Out(0x40, 0)
	p.Tick(6)
	if len(pic.raised) != 1 {
		t.Fatalf("mode 0: expected exactly one IRQ0 pulse, got %d", len(pic.raised))
	}
	p.Tick(100) // free-runs after terminal count, must not refire
	if len(pic.raised) != 1 {
		t.Errorf("mode 0: refired after terminal count, got %d pulses", len(pic.raised))
	}
}
