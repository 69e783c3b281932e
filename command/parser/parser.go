/*
 * x86pc - Command parser.
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
 * The teacher's command/parser dispatched on a channel/device address
 * (attach/detach/set/show against a CCW device reached by "cuu" number)
 * because S/370 consoles operate on devices, not on raw memory. A PC
 * monitor operates directly on one machine's CPU and memory instead,
 * so the device-address plumbing (matchDevice, getDevNum, the
 * command.Command Attach/Detach/Set/Show interface) has no home here;
 * what's kept is the teacher's cmdLine tokenizer (skipSpace/getWord/
 * isEOL/parseQuoteString) and the min-length prefix-matched command
 * table built on top of it.
 */

package parser

import (
	"errors"
	"strings"
	"unicode"

	"github.com/rcornwell/x86pc/emu/host"
)

type cmd struct {
	name     string
	min      int
	process  func(*cmdLine, *host.Machine) (bool, error)
	complete func(*cmdLine) []string
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "boot", min: 2, process: bootCmd},
	{name: "continue", min: 1, process: contCmd},
	{name: "step", min: 2, process: stepCmd},
	{name: "registers", min: 1, process: regsCmd},
	{name: "examine", min: 1, process: examineCmd},
	{name: "deposit", min: 1, process: depositCmd},
	{name: "key", min: 2, process: keyCmd},
	{name: "insert", min: 2, process: insertCmd},
	{name: "eject", min: 2, process: ejectCmd},
	{name: "show", min: 2, process: showCmd},
	{name: "quit", min: 1, process: quitCmd},
}

// ProcessCommand executes one command line against m.
func ProcessCommand(commandLine string, m *host.Machine) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord(false)

	match := matchList(name)
	if len(match) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].process(&line, m)
}

// CompleteCmd returns tab-completion candidates for commandLine.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord(false)

	if !line.isEOL() && line.line[line.pos] == ' ' {
		line.skipSpace()
		match := matchList(name)
		if len(match) != 1 || match[0].complete == nil {
			return nil
		}
		return match[0].complete(&line)
	}

	var matches []string
	for _, m := range cmdList {
		if strings.HasPrefix(m.name, name) {
			matches = append(matches, m.name)
		}
	}
	return matches
}

func matchCommand(m cmd, name string) bool {
	if len(name) > len(m.name) {
		return false
	}
	for i := range name {
		if m.name[i] != name[i] {
			return false
		}
	}
	return len(name) >= m.min
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			match = append(match, m)
		}
	}
	return match
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

func (line *cmdLine) getNext() byte {
	line.pos++
	if line.isEOL() {
		return 0
	}
	return line.line[line.pos]
}

// getWord reads a run of letters/digits, stopping at whitespace or EOL.
func (line *cmdLine) getWord(_ bool) string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	value := ""
	by := line.line[line.pos]
	for {
		if !unicode.IsLetter(rune(by)) && !unicode.IsDigit(rune(by)) {
			return strings.ToLower(value)
		}
		value += string(by)
		by = line.getNext()
		if line.isEOL() || unicode.IsSpace(rune(by)) {
			break
		}
	}
	return strings.ToLower(value)
}

// parseQuoteString reads a "quoted" or bare token, terminated by
// whitespace unless quoted.
func (line *cmdLine) parseQuoteString() (string, bool) {
	line.skipSpace()
	if line.isEOL() {
		return "", false
	}

	inQuote := false
	if line.line[line.pos] == '"' {
		inQuote = true
		line.pos++
		if line.isEOL() {
			return "", false
		}
	}

	value := ""
	for {
		if line.isEOL() {
			return value, !inQuote
		}
		by := line.line[line.pos]
		if inQuote && by == '"' {
			line.pos++
			return value, true
		}
		if !inQuote && unicode.IsSpace(rune(by)) {
			return value, true
		}
		value += string(by)
		line.pos++
	}
}
