/*
 * x86pc - Machine boot configuration.
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
 * Registers the boot-configuration keywords spec.md §6 names (RAM
 * size, VGA RAM size, CPU generation, FPU-present flag, BIOS/VGA-BIOS/
 * kernel blobs and load addresses, the five drive images) with
 * config/configparser, the same init()-registers-callbacks idiom the
 * teacher's config/debugconfig used for its debug-option keywords.
 *
 * configparser's unquoted first value only ever accumulates a run of
 * letters/digits (it has no idea a '/' or ':' might follow), so any
 * value with path or colon separators - a file path, a MAC address -
 * has to travel as a quoted "name=value" option instead of the line's
 * first positional value. Lines here read as
 * "<keyword> <hex-address> path=\"<file>\" [extra=options]", the
 * address filling configparser's mandatory first slot.
 */

package machineconfig

import (
	"errors"
	"os"
	"strconv"
	"strings"

	config "github.com/rcornwell/x86pc/config/configparser"
)

// DriveImage describes one of the five BIOS drive slots (spec.md §4.11).
type DriveImage struct {
	Present bool
	Kind    string // "floppy", "hdd", or "cdrom"
	Path    string
	Data    []byte
}

// Blob is a loaded image plus its physical load address.
type Blob struct {
	Present bool
	Path    string
	Data    []byte
	Addr    uint32
}

// Config is the fully parsed boot configuration (spec.md §6 "Boot
// configuration").
type Config struct {
	RAMSizeKB    int
	VGARAMSizeKB int
	CPUGen       int // 3 (386), 4 (486), 5 (Pentium)
	FPUPresent   bool

	BIOS    Blob
	VGABIOS Blob
	Kernel  Blob

	Drives [5]DriveImage // FDD0, FDD1, HDD0, HDD1, CDROM, in diskbios's slot order

	NE2000Base uint16
	NE2000IRQ  int
	NE2000MAC  [6]byte
}

var cfg = defaultConfig()

func defaultConfig() Config {
	c := Config{
		RAMSizeKB:    16 * 1024,
		VGARAMSizeKB: 256,
		CPUGen:       4,
		FPUPresent:   true,
		NE2000Base:   0x300,
		NE2000IRQ:    9,
	}
	c.BIOS.Addr = 0xf0000
	c.VGABIOS.Addr = 0xc0000
	c.Kernel.Addr = 0x10000
	c.NE2000MAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	return c
}

// Get returns the configuration accumulated by the most recent
// config.LoadConfigFile call.
func Get() Config {
	return cfg
}

// Reset restores defaults, for tests that load more than one config
// file in the same process.
func Reset() {
	cfg = defaultConfig()
}

func init() {
	config.RegisterOption("ram", setRAM)
	config.RegisterOption("vgaram", setVGARAM)
	config.RegisterOption("cpu", setCPU)
	config.RegisterSwitch("nofpu", setNoFPU)
	// bios/vgabios/kernel/drive/ne2000 lines carry a hex address plus
	// quoted path=/extra options after it, which config.RegisterOption's
	// TypeOption can't parse (it requires the first value to be the
	// whole line); TypeOptions is the configparser type built for a
	// value plus a trailing option list, registered the same way
	// RegisterModel lets any caller pick a type.
	config.RegisterModel("bios", config.TypeOptions, setBIOS)
	config.RegisterModel("vgabios", config.TypeOptions, setVGABIOS)
	config.RegisterModel("kernel", config.TypeOptions, setKernel)
	config.RegisterModel("fdd0", config.TypeOptions, setDrive(0, "floppy"))
	config.RegisterModel("fdd1", config.TypeOptions, setDrive(1, "floppy"))
	config.RegisterModel("hdd0", config.TypeOptions, setDrive(2, "hdd"))
	config.RegisterModel("hdd1", config.TypeOptions, setDrive(3, "hdd"))
	config.RegisterModel("cdrom", config.TypeOptions, setDrive(4, "cdrom"))
	config.RegisterModel("ne2000", config.TypeOptions, setNE2000)
}

func parseSize(value string) (int, error) {
	value = strings.TrimSpace(value)
	mult := 1
	switch {
	case strings.HasSuffix(value, "M"):
		mult = 1024
		value = strings.TrimSuffix(value, "M")
	case strings.HasSuffix(value, "K"):
		value = strings.TrimSuffix(value, "K")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("invalid size: " + value)
	}
	return n * mult, nil
}

func setRAM(_ uint16, value string, _ []config.Option) error {
	k, err := parseSize(value)
	if err != nil {
		return err
	}
	cfg.RAMSizeKB = k
	return nil
}

func setVGARAM(_ uint16, value string, _ []config.Option) error {
	k, err := parseSize(value)
	if err != nil {
		return err
	}
	cfg.VGARAMSizeKB = k
	return nil
}

func setCPU(_ uint16, value string, _ []config.Option) error {
	switch strings.ToLower(value) {
	case "386":
		cfg.CPUGen = 3
	case "486":
		cfg.CPUGen = 4
	case "586", "pentium":
		cfg.CPUGen = 5
	default:
		return errors.New("unknown CPU generation: " + value)
	}
	return nil
}

func setNoFPU(_ uint16, _ string, _ []config.Option) error {
	cfg.FPUPresent = false
	return nil
}

func loadBlobFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// pathOption looks for a quoted "path=<file>" option, the only way a
// value containing '/' can travel through configparser's grammar.
func pathOption(opts []config.Option) (string, bool) {
	for _, opt := range opts {
		if strings.EqualFold(opt.Name, "path") && opt.EqualOpt != "" {
			return opt.EqualOpt, true
		}
	}
	return "", false
}

// hexAddr parses the line's mandatory leading value as a physical
// address; an empty or non-hex value means "keep the default".
func hexAddr(value string) (uint32, bool) {
	if value == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func setBIOS(_ uint16, value string, opts []config.Option) error {
	path, ok := pathOption(opts)
	if !ok {
		return errors.New(`bios: missing path="<file>" option`)
	}
	data, err := loadBlobFile(path)
	if err != nil {
		return err
	}
	cfg.BIOS.Present = true
	cfg.BIOS.Path = path
	cfg.BIOS.Data = data
	if addr, ok := hexAddr(value); ok {
		cfg.BIOS.Addr = addr
	}
	return nil
}

func setVGABIOS(_ uint16, value string, opts []config.Option) error {
	path, ok := pathOption(opts)
	if !ok {
		return errors.New(`vgabios: missing path="<file>" option`)
	}
	data, err := loadBlobFile(path)
	if err != nil {
		return err
	}
	cfg.VGABIOS.Present = true
	cfg.VGABIOS.Path = path
	cfg.VGABIOS.Data = data
	if addr, ok := hexAddr(value); ok {
		cfg.VGABIOS.Addr = addr
	}
	return nil
}

func setKernel(_ uint16, value string, opts []config.Option) error {
	path, ok := pathOption(opts)
	if !ok {
		return errors.New(`kernel: missing path="<file>" option`)
	}
	data, err := loadBlobFile(path)
	if err != nil {
		return err
	}
	cfg.Kernel.Present = true
	cfg.Kernel.Path = path
	cfg.Kernel.Data = data
	if addr, ok := hexAddr(value); ok {
		cfg.Kernel.Addr = addr
	}
	return nil
}

// setDrive returns a callback for one of the five diskbios drive
// slots; the line's leading value is unused (the slot is fixed by the
// keyword itself) but still has to be present for configparser's
// grammar.
func setDrive(slot int, kind string) func(uint16, string, []config.Option) error {
	return func(_ uint16, _ string, opts []config.Option) error {
		path, ok := pathOption(opts)
		if !ok {
			return errors.New(`drive: missing path="<file>" option`)
		}
		data, err := loadBlobFile(path)
		if err != nil {
			return err
		}
		cfg.Drives[slot] = DriveImage{Present: true, Kind: kind, Path: path, Data: data}
		return nil
	}
}

// setNE2000 parses "ne2000 <mac-hex-digits> base=0x300 irq=9", the MAC
// given as twelve contiguous hex digits (no colons - configparser's
// unquoted leading value stops at the first non-alnum byte).
func setNE2000(_ uint16, value string, opts []config.Option) error {
	mac, err := parseMAC(value)
	if err != nil {
		return err
	}
	cfg.NE2000MAC = mac
	for _, opt := range opts {
		switch {
		case strings.EqualFold(opt.Name, "base") && opt.EqualOpt != "":
			v, err := strconv.ParseUint(strings.TrimPrefix(opt.EqualOpt, "0x"), 16, 16)
			if err != nil {
				return errors.New("invalid ne2000 base: " + opt.EqualOpt)
			}
			cfg.NE2000Base = uint16(v)
		case strings.EqualFold(opt.Name, "irq") && opt.EqualOpt != "":
			v, err := strconv.Atoi(opt.EqualOpt)
			if err != nil {
				return errors.New("invalid ne2000 irq: " + opt.EqualOpt)
			}
			cfg.NE2000IRQ = v
		}
	}
	return nil
}

func parseMAC(value string) ([6]byte, error) {
	var mac [6]byte
	if len(value) != 12 {
		return mac, errors.New("MAC address must be twelve hex digits: " + value)
	}
	for i := range mac {
		v, err := strconv.ParseUint(value[i*2:i*2+2], 16, 8)
		if err != nil {
			return mac, errors.New("invalid MAC octet: " + value[i*2:i*2+2])
		}
		mac[i] = byte(v)
	}
	return mac, nil
}
