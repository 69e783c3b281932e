/*
   Machine assembly and supervisor loop tests.

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

import (
	"testing"

	config "github.com/rcornwell/x86pc/config/machineconfig"
	"github.com/rcornwell/x86pc/emu/diskbios"
)

// testConfig returns a minimal machine configuration whose BIOS image
// is 16 HLT bytes, so Boot+Step(1) should reach a halted
// CPU deterministically.
func testConfig() config.Config {
	c := config.Config{
		RAMSizeKB:    1024,
		VGARAMSizeKB: 64,
		CPUGen:       4,
		FPUPresent:   true,
		NE2000IRQ:    9,
	}
	c.BIOS.Addr = 0xf0000
	c.BIOS.Data = make([]byte, 16)
	c.BIOS.Data[0] = 0xf4 // HLT
	for i := 1; i < 16; i++ {
		c.BIOS.Data[i] = 0xf4
	}
	return c
}

func TestNewRejectsZeroRAM(t *testing.T) {
	cfg := testConfig()
	cfg.RAMSizeKB = 0
	if _, err := New(cfg); err == nil {
		t.Errorf("New with zero RAM succeeded, want error")
	}
}

func TestBootWithoutBIOSFails(t *testing.T) {
	cfg := testConfig()
	cfg.BIOS.Data = nil
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Boot(); err == nil {
		t.Errorf("Boot with no BIOS image succeeded, want error")
	}
}

func TestBootAndStepReachesHalt(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if m.Halted() {
		t.Fatalf("machine halted immediately after Boot, before executing anything")
	}

	// The CPU's reset vector (linear 0xFFFFFFF0) is served by the
	// top-of-memory BIOS shadow mapped in New, independent of the
	// conventional 0xF0000 copy Boot also makes.
	m.Step(1)
	if !m.Halted() {
		t.Errorf("machine not halted after stepping the reset-vector HLT")
	}
}

func TestInjectKeyDoesNotPanicBeforeBoot(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.InjectKey(true, 30)
	m.InjectMouse(1, -1, 0, 0)
}

func TestInjectNetworkFrameRespectsCanReceive(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	var sent [][]byte
	m.SetNetworkSendFunc(func(frame []byte) {
		sent = append(sent, frame)
	})
	m.InjectNetworkFrame([]byte{1, 2, 3})
}

func TestReadVGAAndTextBuffer(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	data := m.ReadVGA(0, 16)
	if len(data) != 16 {
		t.Errorf("ReadVGA(0, 16) returned %d bytes, want 16", len(data))
	}

	text := m.ReadTextBuffer()
	if len(text) != 80*25*2 {
		t.Errorf("ReadTextBuffer returned %d bytes, want %d", len(text), 80*25*2)
	}
}

func TestReadVGANilWhenNoVGARAM(t *testing.T) {
	cfg := testConfig()
	cfg.VGARAMSizeKB = 0
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if data := m.ReadVGA(0, 16); data != nil {
		t.Errorf("ReadVGA with no VGA RAM configured = %v, want nil", data)
	}
}

func TestEjectAndInsertDisk(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.InsertDisk(diskbios.DriveFDD0, diskbios.KindFloppy, []byte{1, 2, 3, 4}, "floppy.img"); err != nil {
		t.Fatalf("InsertDisk: %v", err)
	}
	if err := m.EjectDisk(diskbios.DriveFDD0); err != nil {
		t.Fatalf("EjectDisk: %v", err)
	}
	if err := m.EjectDisk(diskbios.DriveCount); err == nil {
		t.Errorf("EjectDisk with out-of-range slot succeeded, want error")
	}
	if err := m.InsertDisk(-1, diskbios.KindFloppy, nil, ""); err == nil {
		t.Errorf("InsertDisk with negative slot succeeded, want error")
	}
}

func TestCPUExposesUnderlyingState(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.CPU() == nil {
		t.Errorf("CPU() returned nil")
	}
}
