/*
 * x86pc - Debug options configuration.
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

package debugconfig

import (
	"errors"
	"log/slog"
	"strings"

	config "github.com/rcornwell/x86pc/config/configparser"
)

// Level is the program-wide slog level var main.go installed; set
// here so a config-file "debug" line can raise it without the config
// package needing a reference back into main.
var Level *slog.LevelVar

// register a device on initialize.
func init() {
	config.RegisterOption("debug", setDebug)
}

// setDebug handles a "debug <level>" config line (debug, info, warn,
// error); unlike the mainframe teacher's per-channel/per-device debug
// masks, x86pc's devices log through the shared slog logger (spec.md's
// ambient logging stack), so one global level covers every component.
func setDebug(_ uint16, value string, _ []config.Option) error {
	if Level == nil {
		return errors.New("debugconfig: no slog.LevelVar installed")
	}
	switch strings.ToLower(value) {
	case "debug":
		Level.Set(slog.LevelDebug)
	case "info":
		Level.Set(slog.LevelInfo)
	case "warn":
		Level.Set(slog.LevelWarn)
	case "error":
		Level.Set(slog.LevelError)
	default:
		return errors.New("unknown debug level: " + value)
	}
	return nil
}
