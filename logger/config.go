// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/transitions"
)

// multiWriter fans each log entry out to every registered target.
type multiWriter struct {
	writers []io.Writer
}

func (mw *multiWriter) addWriter(writer io.Writer) {
	mw.writers = append(mw.writers, writer)
}

func (mw *multiWriter) Write(p []byte) (n int, err error) {
	for _, writer := range mw.writers {
		n, err = writer.Write(p)
		if nil != err {
			return
		}
	}
	return len(p), nil
}

type globalsStruct struct {
	logFile     *os.File
	logTargets  *multiWriter
	stderrOnUse bool
}

var globals globalsStruct

func init() {
	transitions.Register("logger", &globals)
}

// Up initializes logging destinations and per-package trace/debug settings
// from the confMap.
func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	log.SetFormatter(&log.TextFormatter{DisableColors: true})

	globals.logTargets = &multiWriter{}

	// Fetch log file info, if provided
	logFilePath, _ := confMap.FetchOptionValueString("Logging", "LogFilePath")
	if "" != logFilePath {
		globals.logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if nil != err {
			log.Errorf("couldn't open log file: %v", err)
			return err
		}
		globals.logTargets.addWriter(globals.logFile)
	}

	// Determine whether we should log to console. Default is false unless
	// no log file was configured (logs have to land somewhere).
	logToConsole, confErr := confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if nil != confErr {
		logToConsole = "" == logFilePath
	}
	if logToConsole {
		globals.logTargets.addWriter(os.Stderr)
		globals.stderrOnUse = true
	}

	log.SetOutput(globals.logTargets)

	// NOTE: We always enable max logging in logrus and decide in this
	//       package whether to emit on a per-level/per-package basis.
	log.SetLevel(log.DebugLevel)

	// Fetch trace and debug log settings, if provided
	traceConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	setTraceLoggingLevel(traceConfSlice)

	debugConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "DebugLevelLogging")
	setDebugLoggingLevel(debugConfSlice)

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	// We open and close our own logfile
	if nil != globals.logFile {
		err = globals.logFile.Close()
		globals.logFile = nil
	}
	return
}

// AddLogTarget adds another target for log messages to be written to. writer
// is an object with an io.Writer interface that's called once for each log
// message.
//
// logger must be Up before this function is used.
func AddLogTarget(writer io.Writer) {
	globals.logTargets.addWriter(writer)
}

// LogTarget is an example of a log target that captures the most recent n
// lines of log into an array. Useful for writing test cases.
type LogBuffer struct {
	LogEntries   []string // most recent log entry is [0]
	TotalEntries int      // count of all entries seen
}

type LogTarget struct {
	LogBuf *LogBuffer
}

// Init initializes a LogTarget to hold up to nEntry log entries.
func (target *LogTarget) Init(nEntry int) {
	target.LogBuf = &LogBuffer{TotalEntries: 0}
	target.LogBuf.LogEntries = make([]string, nEntry)
}

// Write is called by logger for each log entry
func (target LogTarget) Write(p []byte) (n int, err error) {
	if nil == target.LogBuf {
		return 0, nil
	}

	// Shift down and prepend at [0]; losing the oldest entry is fine for
	// test consumption.
	copy(target.LogBuf.LogEntries[1:], target.LogBuf.LogEntries[0:len(target.LogBuf.LogEntries)-1])
	target.LogBuf.LogEntries[0] = string(p)
	target.LogBuf.TotalEntries++

	return len(p), nil
}
