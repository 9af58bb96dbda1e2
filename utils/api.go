// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package utils provides miscellaneous runtime introspection and timing
// helpers shared by the other lockfs packages.
package utils

import (
	"bytes"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// GetGID returns the ID of the calling goroutine.
//
// The locking layer keys its per-goroutine lock accounts off this value, so
// it must be stable for the lifetime of a goroutine (it is; the runtime
// never reuses an ID for a live goroutine). Parsing runtime.Stack() output
// is the only way to obtain it without linkname tricks.
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

// StackTraceToGoId extracts the goroutine ID from a stack trace previously
// captured via runtime.Stack(), avoiding the cost of capturing a second one.
func StackTraceToGoId(stackTrace []byte) uint64 {
	b := bytes.TrimPrefix(stackTrace, []byte("goroutine "))
	spaceIndex := bytes.IndexByte(b, ' ')
	if -1 == spaceIndex {
		return 0
	}
	n, _ := strconv.ParseUint(string(b[:spaceIndex]), 10, 64)
	return n
}

var extractFnNameRE = regexp.MustCompile(`[^\/]*$`)
var extractPkgNameRE = regexp.MustCompile(`^[^.]*`)
var extractFnOnlyRE = regexp.MustCompile(`[^.]*$`)

// GetAFnName returns "<package>.<function>" for the requested call stack
// level, where level 0 is the caller of GetAFnName.
func GetAFnName(level int) string {
	pc, _, _, _ := runtime.Caller(level + 1)
	functionObject := runtime.FuncForPC(pc)
	return extractFnNameRE.FindString(functionObject.Name())
}

// GetFuncPackage returns separate function and package name strings for the
// requested call stack level, plus the calling goroutine's ID (useful when
// logging lock activity).
func GetFuncPackage(level int) (fn string, pkg string, gid uint64) {
	funcPkg := GetAFnName(level + 1)

	pkg = extractPkgNameRE.FindString(funcPkg)
	fn = extractFnOnlyRE.FindString(funcPkg)
	gid = GetGID()

	return fn, pkg, gid
}

// GetFnName returns the name of the running function and its package.
func GetFnName() string {
	return GetAFnName(1)
}

// GetCallerFnName returns the name of the calling function.
func GetCallerFnName() string {
	return GetAFnName(2)
}

// Stopwatch is a simple duration measurement tool.
type Stopwatch struct {
	StartTime   time.Time
	StopTime    time.Time
	ElapsedTime time.Duration
	IsRunning   bool
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{StartTime: time.Now(), IsRunning: true}
}

func (sw *Stopwatch) Stop() time.Duration {
	sw.StopTime = time.Now()
	sw.ElapsedTime = sw.StopTime.Sub(sw.StartTime)
	sw.IsRunning = false
	return sw.ElapsedTime
}

func (sw *Stopwatch) Restart() {
	sw.StartTime = time.Now()
	sw.StopTime = time.Time{}
	sw.ElapsedTime = 0
	sw.IsRunning = true
}

func (sw *Stopwatch) Elapsed() time.Duration {
	if sw.IsRunning {
		return time.Since(sw.StartTime)
	}
	return sw.ElapsedTime
}

func (sw *Stopwatch) ElapsedMs() int64 {
	return int64(sw.Elapsed() / time.Millisecond)
}

func (sw *Stopwatch) ElapsedMsString() string {
	return fmt.Sprintf("%d", sw.ElapsedMs())
}
