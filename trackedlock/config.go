// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package trackedlock

import (
	"time"

	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/logger"
	"github.com/openvfs/lockfs/transitions"
)

func parseConfMap(confMap conf.ConfMap) (err error) {

	globals.lockHoldTimeLimit, err = confMap.FetchOptionValueDuration("TrackedLock", "LockHoldTimeLimit")
	if nil != err {
		logger.Warnf("config variable 'TrackedLock.LockHoldTimeLimit' defaulting to '0s': %v", err)
		globals.lockHoldTimeLimit = time.Duration(0)
	}

	// lockHoldTimeLimit must be >= 1 sec or 0
	if globals.lockHoldTimeLimit < time.Second && globals.lockHoldTimeLimit != 0 {
		logger.Warnf("config variable 'TrackedLock.LockHoldTimeLimit' value less than 1 sec; defaulting to '40s'")
		globals.lockHoldTimeLimit = 40 * time.Second
	}

	globals.lockCheckPeriod, err = confMap.FetchOptionValueDuration("TrackedLock", "LockCheckPeriod")
	if nil != err {
		logger.Warnf("config variable 'TrackedLock.LockCheckPeriod' defaulting to '0s': %v", err)
		globals.lockCheckPeriod = time.Duration(0)
	}

	// lockCheckPeriod must be >= 1 sec or 0
	if globals.lockCheckPeriod < time.Second && globals.lockCheckPeriod != 0 {
		logger.Warnf("config variable 'TrackedLock.LockCheckPeriod' value less than 1 sec; defaulting to '20s'")
		globals.lockCheckPeriod = 20 * time.Second
	}

	err = nil
	return
}

func init() {
	transitions.Register("trackedlock", &globals)
}

// Up initializes the package. Locks can be used before it is called but
// tracking will not start until the first Lock() after it returns.
func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	err = parseConfMap(confMap)
	if nil != err {
		return
	}

	globals.mutexMap = make(map[*MutexTrack]interface{})
	globals.rwMutexMap = make(map[*RWMutexTrack]interface{})

	if (globals.lockCheckPeriod != 0) && (globals.lockHoldTimeLimit != 0) {
		globals.stopChan = make(chan struct{})
		globals.doneChan = make(chan struct{})
		go lockWatcher()
	}

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	if nil != globals.stopChan {
		close(globals.stopChan)
		<-globals.doneChan
		globals.stopChan = nil
		globals.doneChan = nil
	}

	globals.lockHoldTimeLimit = 0
	globals.lockCheckPeriod = 0

	err = nil
	return
}
