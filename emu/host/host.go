/*
   Machine assembly and supervisor loop.

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

   Wires the CPU, PIC pair, PIT, RTC, i8042, NE2000 and disk-BIOS hook
   into one machine and exposes the spec.md §6 externally-callable
   surface (Boot, per-frame Step(N), keyboard/mouse/network injection,
   VGA/text-buffer reads, disk eject/insert), grounded on the teacher's
   emu/core/core.go supervisor loop: that package alternated
   cpu.CycleCPU() with event.Advance() inside a goroutine driven by a
   channel of master.Packet commands, a shape that generalizes directly
   to spec.md §9's "outer loop that alternates cpu_step_batch(n) with
   each device.tick(now)" and §5's single cooperative-scheduler thread.
*/

package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	config "github.com/rcornwell/x86pc/config/machineconfig"
	"github.com/rcornwell/x86pc/emu/cpu"
	"github.com/rcornwell/x86pc/emu/diskbios"
	"github.com/rcornwell/x86pc/emu/i8042"
	"github.com/rcornwell/x86pc/emu/iobus"
	mem "github.com/rcornwell/x86pc/emu/memory"
	"github.com/rcornwell/x86pc/emu/ne2000"
	"github.com/rcornwell/x86pc/emu/pic"
	"github.com/rcornwell/x86pc/emu/pit"
	"github.com/rcornwell/x86pc/emu/rtc"
)

// Machine is one assembled PC: a CPU, its port-I/O bus, and the
// device fabric that bus routes to.
type Machine struct {
	mu sync.Mutex

	cpu *cpu.CPUState
	bus *iobus.Bus

	pics  *pic.Pair
	pit   *pit.PIT
	rtc   *rtc.RTC
	kbd   *i8042.Controller
	nic   *ne2000.Device
	disks *diskbios.Controller

	vga *vgaRegion

	biosData    []byte
	biosAddr    uint32
	vgaBiosData []byte
	vgaBiosAddr uint32
	kernelData  []byte
	kernelAddr  uint32
}

// New assembles a machine from cfg but does not yet load images or
// reset the CPU; call Boot for that.
func New(cfg config.Config) (*Machine, error) {
	if cfg.RAMSizeKB <= 0 {
		return nil, errors.New("host: RAM size must be positive")
	}

	m := &Machine{}
	m.pics = pic.NewPair()
	m.pit = pit.New(m.pics)
	m.rtc = rtc.New(m.pics)
	m.kbd = i8042.New(m.pics, m.triggerReset)
	m.nic = ne2000.New(m.pics, cfg.NE2000IRQ, cfg.NE2000MAC)
	m.disks = diskbios.New()

	m.bus = iobus.New()
	if err := m.wireBus(cfg); err != nil {
		return nil, err
	}

	m.cpu = cpu.New(cfg.CPUGen, cfg.FPUPresent, m.bus)
	m.disks.Attach(m.cpu)

	mem.SetSize(cfg.RAMSizeKB)
	mem.ResetWindows()
	if cfg.VGARAMSizeKB > 0 {
		m.vga = newVGARegion(cfg.VGARAMSizeKB * 1024)
		mem.MapRegion(vgaBase, uint32(cfg.VGARAMSizeKB*1024), m.vga)
	}
	if len(cfg.BIOS.Data) != 0 {
		mem.MapRegion(topOfMemoryShadowBase(len(cfg.BIOS.Data)), uint32(len(cfg.BIOS.Data)), &romRegion{data: cfg.BIOS.Data})
	}

	m.biosData, m.biosAddr = cfg.BIOS.Data, cfg.BIOS.Addr
	m.vgaBiosData, m.vgaBiosAddr = cfg.VGABIOS.Data, cfg.VGABIOS.Addr
	m.kernelData, m.kernelAddr = cfg.Kernel.Data, cfg.Kernel.Addr

	for i, d := range cfg.Drives {
		if !d.Present {
			continue
		}
		kind := driveKind(d.Kind)
		m.disks.Drives[i].Insert(kind, d.Data, d.Path)
	}

	return m, nil
}

func driveKind(s string) diskbios.Kind {
	switch s {
	case "hdd":
		return diskbios.KindHardDisk
	case "cdrom":
		return diskbios.KindCDROM
	default:
		return diskbios.KindFloppy
	}
}

// wireBus registers every device's port range on the shared bus
// (spec.md §6 "I/O port map"). The PIC pair exposes separate
// InMaster/OutMaster and InSlave/OutSlave methods rather than one
// In/Out pair, so each chip gets its own thin adapter.
func (m *Machine) wireBus(cfg config.Config) error {
	if err := m.bus.Register(0x0020, 2, picMasterAdapter{m.pics}); err != nil {
		return err
	}
	if err := m.bus.Register(0x00a0, 2, picSlaveAdapter{m.pics}); err != nil {
		return err
	}
	if err := m.bus.Register(0x0040, 4, m.pit); err != nil {
		return err
	}
	if err := m.bus.Register(0x0060, 1, m.kbd); err != nil {
		return err
	}
	if err := m.bus.Register(0x0064, 1, m.kbd); err != nil {
		return err
	}
	if err := m.bus.Register(0x0070, 2, m.rtc); err != nil {
		return err
	}
	if err := m.bus.Register(0x0cf8, 8, pciStub{}); err != nil {
		return err
	}
	base := cfg.NE2000Base
	if base == 0 {
		base = 0x300
	}
	if err := m.bus.Register(base, 0x20, m.nic); err != nil {
		return err
	}
	return nil
}

// triggerReset implements the i8042 resetFn callback for command 0xFE
// (spec.md §5 "Cancellation": "a reset (triple fault or 0xFE on
// i8042)").
func (m *Machine) triggerReset() {
	m.cpu.RaiseReset()
}

// Boot loads the configured images into physical RAM, resets every
// device to its power-on state, and leaves the CPU ready to execute
// at the reset vector (spec.md §6 "Boot: load images, reset, run").
func (m *Machine) Boot() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.biosData) == 0 {
		return errors.New("host: no BIOS image configured")
	}
	mem.LoadBlob(m.biosAddr, m.biosData)
	if len(m.vgaBiosData) != 0 {
		mem.LoadBlob(m.vgaBiosAddr, m.vgaBiosData)
	}
	if len(m.kernelData) != 0 {
		mem.LoadBlob(m.kernelAddr, m.kernelData)
	}

	m.pics.Reset()
	m.pit.Reset()
	m.rtc.Reset()
	m.kbd.Reset()
	m.nic.Reset()
	m.cpu.RaiseReset()
	m.cpu.Step(m.pics) // consumes the pending reset, re-entering at F000:FFF0

	slog.Info("machine booted", slog.Int("ram_kb", int(mem.GetSize()/1024)))
	return nil
}

// Step executes up to n guest instructions, alternating each one with
// a PIT/RTC/i8042 tick, the cooperative round-robin spec.md §5 and §9
// describe ("an outer loop that alternates cpu_step_batch(n) with each
// device.tick(now)").
func (m *Machine) Step(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.cpu.Step(m.pics)
		m.pit.Tick(1)
		m.rtc.Tick(1)
		m.kbd.Tick()
	}
}

// Halted reports whether the CPU is parked in HLT (spec.md §8 "HLT
// with IF=0 and no NMI... must be observably idle").
func (m *Machine) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cpu.Halted()
}

// InjectKey feeds one host keyboard event (spec.md §6).
func (m *Machine) InjectKey(isDown bool, linuxKeycode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kbd.InjectKey(isDown, linuxKeycode)
}

// InjectMouse feeds one host mouse motion/button event (spec.md §6).
func (m *Machine) InjectMouse(dx, dy, dz int32, buttons uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kbd.InjectMouse(dx, dy, dz, buttons)
}

// InjectNetworkFrame delivers one received Ethernet frame to the
// NE2000's receive path (spec.md §6 "Inject network frame").
func (m *Machine) InjectNetworkFrame(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nic.CanReceive() {
		return
	}
	m.nic.Receive(frame)
}

// SetNetworkSendFunc installs the host-side transmit callback; NE2000
// calls it once per transmitted frame (spec.md §1 Non-goals: the
// actual host transport is out of scope, only this seam is specified).
func (m *Machine) SetNetworkSendFunc(send func(frame []byte)) {
	m.nic.SetSendFunc(send)
}

// ReadVGA copies size bytes starting at offset from the VGA RAM
// window for display (spec.md §6 "Read VGA RAM / text buffer for
// display").
func (m *Machine) ReadVGA(offset, size uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vga == nil {
		return nil
	}
	return m.vga.snapshot(offset, size)
}

// ReadTextBuffer reads the 80x25 CGA/VGA text-mode buffer at physical
// 0xB8000, 2 bytes (char, attribute) per cell, through the physical
// address map: the VGA window when it reaches that far, else RAM.
func (m *Machine) ReadTextBuffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, 80*25*2)
	for i := range out {
		out[i] = mem.GetByte(textBufferBase + uint32(i))
	}
	return out
}

// EjectDisk removes the medium from drive slot idx (spec.md §6
// "Eject/insert a disk image by drive index").
func (m *Machine) EjectDisk(idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= diskbios.DriveCount {
		return fmt.Errorf("host: drive index %d out of range", idx)
	}
	m.disks.Drives[idx].Eject()
	return nil
}

// InsertDisk inserts image as the medium in drive slot idx.
func (m *Machine) InsertDisk(idx int, kind diskbios.Kind, image []byte, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= diskbios.DriveCount {
		return fmt.Errorf("host: drive index %d out of range", idx)
	}
	m.disks.Drives[idx].Insert(kind, image, filename)
	return nil
}

// CPU exposes the underlying CPU state for the debug console.
func (m *Machine) CPU() *cpu.CPUState { return m.cpu }
