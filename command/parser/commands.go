/*
 * x86pc - Command executor.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 * Command bodies for the debug console, grounded on the shapes of the
 * teacher's command/parser/mem_commands.go (hex-value parsing, a
 * named-register table) and command/parser/parser.go (stop/continue/
 * ipl as direct core calls), generalized from CCW devices/PSW/GPRs to
 * the x86 register file, physical memory and the five BIOS drive
 * slots in emu/host.Machine.
 */

package parser

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rcornwell/x86pc/emu/diskbios"
	"github.com/rcornwell/x86pc/emu/host"
	mem "github.com/rcornwell/x86pc/emu/memory"
	hex "github.com/rcornwell/x86pc/util/hex"
)

var regNames = []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

var segNames = []string{"es", "cs", "ss", "ds", "fs", "gs"}

func parseHex32(text string) (uint32, error) {
	v, err := strconv.ParseUint(text, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("not a hex value: %s", text)
	}
	return uint32(v), nil
}

func bootCmd(_ *cmdLine, m *host.Machine) (bool, error) {
	return false, m.Boot()
}

func contCmd(_ *cmdLine, m *host.Machine) (bool, error) {
	for !m.Halted() {
		m.Step(1000)
	}
	return false, nil
}

func stepCmd(line *cmdLine, m *host.Machine) (bool, error) {
	n := 1
	if word := line.getWord(false); word != "" {
		v, err := strconv.Atoi(word)
		if err != nil {
			return false, fmt.Errorf("step count must be a number: %s", word)
		}
		n = v
	}
	m.Step(n)
	return false, nil
}

// regsCmd prints the general, segment and EFLAGS registers (teacher's
// "reg"/"psw" show, generalized to the x86 register file).
func regsCmd(_ *cmdLine, m *host.Machine) (bool, error) {
	c := m.CPU()
	for i, name := range regNames {
		fmt.Printf("%-4s= %08x  ", name, c.Reg(i))
		if i%4 == 3 {
			fmt.Println()
		}
	}
	fmt.Println()
	for i, name := range segNames {
		fmt.Printf("%-3s= %04x (base %08x)  ", name, c.SegSelector(i), c.SegBase(i))
	}
	fmt.Println()
	fmt.Printf("eip = %08x  eflags = %08x  halted = %v\n", c.EIP(), c.Eflags(), m.Halted())
	return false, nil
}

// examineCmd prints count bytes of physical memory starting at addr:
// "examine <hex-addr> [count]".
func examineCmd(line *cmdLine, _ *host.Machine) (bool, error) {
	addrStr := line.getWord(false)
	if addrStr == "" {
		return false, errors.New("examine requires an address")
	}
	addr, err := parseHex32(addrStr)
	if err != nil {
		return false, err
	}
	count := 16
	if word := line.getWord(false); word != "" {
		n, err := strconv.Atoi(word)
		if err != nil {
			return false, fmt.Errorf("count must be a number: %s", word)
		}
		count = n
	}

	for i := 0; i < count; i += 16 {
		row := make([]uint8, 0, 16)
		for j := i; j < i+16 && j < count; j++ {
			row = append(row, mem.GetByte(addr+uint32(j)))
		}
		var str strings.Builder
		hex.FormatBytes(&str, true, row)
		fmt.Printf("%08x: %s\n", addr+uint32(i), str.String())
	}
	return false, nil
}

// depositCmd writes one byte to physical memory: "deposit <hex-addr> <hex-byte>".
func depositCmd(line *cmdLine, _ *host.Machine) (bool, error) {
	addrStr := line.getWord(false)
	valStr := line.getWord(false)
	if addrStr == "" || valStr == "" {
		return false, errors.New("deposit requires an address and a byte value")
	}
	addr, err := parseHex32(addrStr)
	if err != nil {
		return false, err
	}
	val, err := strconv.ParseUint(valStr, 16, 8)
	if err != nil {
		return false, fmt.Errorf("not a hex byte: %s", valStr)
	}
	mem.PutByte(addr, uint8(val))
	return false, nil
}

// keyCmd injects one keyboard event: "key <up|down> <linux-keycode>".
func keyCmd(line *cmdLine, m *host.Machine) (bool, error) {
	dir := line.getWord(false)
	codeStr := line.getWord(false)
	if dir == "" || codeStr == "" {
		return false, errors.New("key requires up|down and a keycode")
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return false, fmt.Errorf("keycode must be a number: %s", codeStr)
	}
	switch dir {
	case "down":
		m.InjectKey(true, code)
	case "up":
		m.InjectKey(false, code)
	default:
		return false, errors.New("key direction must be up or down: " + dir)
	}
	return false, nil
}

var driveSlots = map[string]int{
	"fdd0": diskbios.DriveFDD0, "fdd1": diskbios.DriveFDD1,
	"hdd0": diskbios.DriveHDD0, "hdd1": diskbios.DriveHDD1,
	"cdrom": diskbios.DriveCDROM,
}

var driveKinds = map[string]diskbios.Kind{
	"floppy": diskbios.KindFloppy,
	"hdd":    diskbios.KindHardDisk,
	"cdrom":  diskbios.KindCDROM,
}

// insertCmd loads an image into a drive slot: insert <slot> <kind> "<path>".
func insertCmd(line *cmdLine, m *host.Machine) (bool, error) {
	slotName := line.getWord(false)
	kindName := line.getWord(false)
	path, ok := line.parseQuoteString()
	if !ok || path == "" {
		return false, errors.New(`insert requires a slot, a kind and a "path"`)
	}
	slot, ok := driveSlots[slotName]
	if !ok {
		return false, errors.New("unknown drive slot: " + slotName)
	}
	kind, ok := driveKinds[kindName]
	if !ok {
		return false, errors.New("unknown drive kind: " + kindName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return false, m.InsertDisk(slot, kind, data, path)
}

// ejectCmd empties a drive slot: eject <slot>.
func ejectCmd(line *cmdLine, m *host.Machine) (bool, error) {
	slotName := line.getWord(false)
	slot, ok := driveSlots[slotName]
	if !ok {
		return false, errors.New("unknown drive slot: " + slotName)
	}
	return false, m.EjectDisk(slot)
}

// showCmd reports machine status: just "halted" today, extended as
// the console grows more device inspection.
func showCmd(_ *cmdLine, m *host.Machine) (bool, error) {
	fmt.Printf("halted = %v\n", m.Halted())
	return false, nil
}

func quitCmd(_ *cmdLine, _ *host.Machine) (bool, error) {
	return true, nil
}
