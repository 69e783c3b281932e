/*
 * x86pc - Main process.
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

package main

import (
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	reader "github.com/rcornwell/x86pc/command/reader"
	config "github.com/rcornwell/x86pc/config/configparser"
	machine "github.com/rcornwell/x86pc/config/machineconfig"
	"github.com/rcornwell/x86pc/emu/host"
	logger "github.com/rcornwell/x86pc/util/logger"

	debug "github.com/rcornwell/x86pc/config/debugconfig"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "x86pc.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Start with debug-level logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			slog.Error("could not create log file: " + err.Error())
			os.Exit(1)
		}
	}

	programLevel := new(slog.LevelVar)
	if *optDebug {
		programLevel.Set(slog.LevelDebug)
	} else {
		programLevel.Set(slog.LevelInfo)
	}
	debug.Level = programLevel

	log := slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(log)

	log.Info("x86pc started")

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		log.Error("configuration file not found: " + *optConfig)
		os.Exit(1)
	}

	if err := config.LoadConfigFile(*optConfig); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	m, err := host.New(machine.Get())
	if err != nil {
		log.Error("could not assemble machine: " + err.Error())
		os.Exit(1)
	}

	reader.ConsoleReader(m)

	log.Info("x86pc shut down")
}
