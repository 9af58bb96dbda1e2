// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package dlm

// Configuration variables for the local lock manager

import (
	"fmt"

	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/trackedlock"
	"github.com/openvfs/lockfs/transitions"
)

type globalsStruct struct {
	trackedlock.Mutex

	// Map used to store locks with local holders.
	// NOTE: This map is protected by the Mutex
	localLockMap map[string]*localLockTrack
}

var globals globalsStruct

func init() {
	transitions.Register("dlm", &globals)
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	// create map used to store locks
	globals.localLockMap = make(map[string]*localLockTrack)
	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	globals.Lock()
	if 0 != len(globals.localLockMap) {
		globals.Unlock()
		err = fmt.Errorf("dlm.Down() called with %v lock(s) still held", len(globals.localLockMap))
		return
	}
	globals.localLockMap = nil
	globals.Unlock()

	err = nil
	return
}
