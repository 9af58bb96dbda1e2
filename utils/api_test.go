// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetGID(t *testing.T) {
	assert := assert.New(t)

	gid := GetGID()
	assert.NotZero(gid, "GetGID() should never return zero")
	assert.Equal(gid, GetGID(), "GetGID() must be stable within one goroutine")

	var (
		otherGID uint64
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		otherGID = GetGID()
		wg.Done()
	}()
	wg.Wait()
	assert.NotEqual(gid, otherGID, "distinct goroutines must see distinct IDs")
}

func TestGetFuncPackage(t *testing.T) {
	assert := assert.New(t)

	fn, pkg, gid := GetFuncPackage(0)
	assert.Equal("TestGetFuncPackage", fn)
	assert.Equal("utils", pkg)
	assert.Equal(GetGID(), gid)
}

func TestStopwatch(t *testing.T) {
	assert := assert.New(t)

	sw := NewStopwatch()
	assert.True(sw.IsRunning)
	time.Sleep(10 * time.Millisecond)
	elapsed := sw.Stop()
	assert.False(sw.IsRunning)
	assert.True(elapsed >= 10*time.Millisecond)
	assert.Equal(elapsed, sw.Elapsed())

	sw.Restart()
	assert.True(sw.IsRunning)
}
