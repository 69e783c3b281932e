package parser

/*
 * x86pc - Command parser tests.
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
 */

import (
	"testing"

	"github.com/rcornwell/x86pc/config/machineconfig"
	"github.com/rcornwell/x86pc/emu/host"
)

func testMachine(t *testing.T) *host.Machine {
	t.Helper()
	cfg := machineconfig.Config{
		RAMSizeKB:    1024,
		VGARAMSizeKB: 64,
		CPUGen:       4,
		FPUPresent:   true,
		NE2000IRQ:    9,
	}
	cfg.BIOS.Addr = 0xf0000
	// 16 HLT bytes, so the top-of-memory alias reaches the reset vector
	// at 0xFFFFFFF0.
	cfg.BIOS.Data = []byte{0xf4, 0xf4, 0xf4, 0xf4, 0xf4, 0xf4, 0xf4, 0xf4,
		0xf4, 0xf4, 0xf4, 0xf4, 0xf4, 0xf4, 0xf4, 0xf4}
	m, err := host.New(cfg)
	if err != nil {
		t.Fatalf("host.New: %v", err)
	}
	return m
}

func TestGetWordStopsAtSpace(t *testing.T) {
	line := cmdLine{line: "step 5"}
	if w := line.getWord(false); w != "step" {
		t.Errorf("getWord = %q, want %q", w, "step")
	}
	if w := line.getWord(false); w != "5" {
		t.Errorf("getWord = %q, want %q", w, "5")
	}
}

func TestParseQuoteStringHandlesQuotedAndBare(t *testing.T) {
	line := cmdLine{line: `"a path" rest`}
	v, ok := line.parseQuoteString()
	if !ok || v != "a path" {
		t.Errorf("parseQuoteString = %q, %v; want %q, true", v, ok, "a path")
	}

	line = cmdLine{line: "bare rest"}
	v, ok = line.parseQuoteString()
	if !ok || v != "bare" {
		t.Errorf("parseQuoteString = %q, %v; want %q, true", v, ok, "bare")
	}
}

func TestMatchListPrefixAndEmpty(t *testing.T) {
	if m := matchList("q"); len(m) != 1 || m[0].name != "quit" {
		t.Errorf("matchList(q) = %v, want [quit]", m)
	}
	if m := matchList("reg"); len(m) != 1 || m[0].name != "registers" {
		t.Errorf("matchList(reg) = %v, want [registers]", m)
	}
	if m := matchList(""); len(m) != 0 {
		t.Errorf("matchList(\"\") = %v, want empty", m)
	}
}

func TestProcessCommandUnknown(t *testing.T) {
	m := testMachine(t)
	if _, err := ProcessCommand("bogus", m); err == nil {
		t.Errorf("ProcessCommand(bogus) succeeded, want error")
	}
}

func TestProcessCommandQuit(t *testing.T) {
	m := testMachine(t)
	quit, err := ProcessCommand("quit", m)
	if err != nil {
		t.Fatalf("ProcessCommand(quit): %v", err)
	}
	if !quit {
		t.Errorf("ProcessCommand(quit) returned quit=false")
	}
}

func TestProcessCommandBootAndStep(t *testing.T) {
	m := testMachine(t)
	if _, err := ProcessCommand("boot", m); err != nil {
		t.Fatalf("ProcessCommand(boot): %v", err)
	}
	if _, err := ProcessCommand("step 1", m); err != nil {
		t.Fatalf("ProcessCommand(step 1): %v", err)
	}
	if !m.Halted() {
		t.Errorf("machine not halted after stepping the reset-vector HLT")
	}
}

func TestProcessCommandExamineAndDeposit(t *testing.T) {
	m := testMachine(t)
	if _, err := ProcessCommand("deposit 1000 ab", m); err != nil {
		t.Fatalf("ProcessCommand(deposit): %v", err)
	}
	if _, err := ProcessCommand("examine 1000 1", m); err != nil {
		t.Fatalf("ProcessCommand(examine): %v", err)
	}
}

func TestProcessCommandRegisters(t *testing.T) {
	m := testMachine(t)
	if _, err := ProcessCommand("registers", m); err != nil {
		t.Fatalf("ProcessCommand(registers): %v", err)
	}
}

func TestProcessCommandEjectUnknownSlot(t *testing.T) {
	m := testMachine(t)
	if _, err := ProcessCommand("eject fdd9", m); err == nil {
		t.Errorf("ProcessCommand(eject fdd9) succeeded, want error")
	}
}

func TestCompleteCmdPrefix(t *testing.T) {
	matches := CompleteCmd("sh")
	found := false
	for _, m := range matches {
		if m == "show" {
			found = true
		}
	}
	if !found {
		t.Errorf("CompleteCmd(sh) = %v, want to include %q", matches, "show")
	}
}
