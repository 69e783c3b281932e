package iobus

import "testing"

type fakeDevice struct {
	lastIn, lastOut uint16
	reg             uint8
}

func (f *fakeDevice) In(port uint16) uint8 {
	f.lastIn = port
	return f.reg
}

func (f *fakeDevice) Out(port uint16, val uint8) {
	f.lastOut = port
	f.reg = val
}

func TestRegisterAndDispatch(t *testing.T) {
	b := New()
	dev := &fakeDevice{}
	if err := b.Register(0x40, 4, dev); err != nil {
		t.Fatalf("unexpected error registering: %v", err)
	}
	b.Out(0x42, 0x7b)
	if dev.lastOut != 0x42 || dev.reg != 0x7b {
		t.Errorf("Out not routed correctly: port=%#x reg=%#x", dev.lastOut, dev.reg)
	}
	got := b.In(0x40)
	if got != 0x7b || dev.lastIn != 0x40 {
		t.Errorf("In not routed correctly: got=%#x lastIn=%#x", got, dev.lastIn)
	}
}

func TestUnmappedPortReturnsOpenBus(t *testing.T) {
	b := New()
	if got := b.In(0x300); got != OpenBus {
		t.Errorf("unmapped port got %#x wanted OpenBus", got)
	}
}

func TestUnmappedWriteIsDiscarded(t *testing.T) {
	b := New()
	b.Out(0x300, 0xff) // must not panic
}

func TestOverlappingRangeRejected(t *testing.T) {
	b := New()
	if err := b.Register(0x20, 2, &fakeDevice{}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := b.Register(0x21, 2, &fakeDevice{}); err == nil {
		t.Errorf("overlapping range [0x21,0x23) should be rejected")
	}
}

func TestAdjacentRangesDoNotOverlap(t *testing.T) {
	b := New()
	if err := b.Register(0x20, 2, &fakeDevice{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Register(0x22, 2, &fakeDevice{}); err != nil {
		t.Errorf("adjacent, non-overlapping range should be accepted: %v", err)
	}
}

func TestZeroLengthRejected(t *testing.T) {
	b := New()
	if err := b.Register(0x20, 0, &fakeDevice{}); err == nil {
		t.Errorf("zero-length range should be rejected")
	}
}

func TestMustRegisterPanicsOnOverlap(t *testing.T) {
	b := New()
	b.MustRegister(0x60, 2, &fakeDevice{})
	defer func() {
		if recover() == nil {
			t.Errorf("MustRegister should panic on an overlapping range")
		}
	}()
	b.MustRegister(0x61, 2, &fakeDevice{})
}
