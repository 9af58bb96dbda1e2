// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"fmt"
	"time"

	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/trackedlock"
	"github.com/openvfs/lockfs/transitions"
)

type globalsStruct struct {
	// accountMap tracks, per goroutine ID, how many locks of this layer the
	// goroutine holds. Protected by accountMapMutex.
	accountMapMutex trackedlock.Mutex
	accountMap      map[uint64]*accountStruct

	lockRetryDelayMax time.Duration // upper bound of the random retry pause
	retryLimit        uint64        // retries before giving up; 0 is unbounded
}

var globals globalsStruct

func init() {
	transitions.Register("fslock", &globals)
}

// Up initializes the package. Config section [FSLock]:
//
//	LockRetryDelayMax   upper bound of the random pause between retries of
//	                    a top level operation (default 100ms)
//	RetryLimit          number of retries after which a top level operation
//	                    panics instead of retrying again (default 0, meaning
//	                    retry forever)
func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	globals.accountMap = make(map[uint64]*accountStruct)

	globals.lockRetryDelayMax, err = confMap.FetchOptionValueDuration("FSLock", "LockRetryDelayMax")
	if nil != err {
		globals.lockRetryDelayMax = 100 * time.Millisecond
	}
	if globals.lockRetryDelayMax <= 0 {
		err = fmt.Errorf("FSLock.LockRetryDelayMax must be positive (got %v)", globals.lockRetryDelayMax)
		return
	}

	globals.retryLimit, err = confMap.FetchOptionValueUint64("FSLock", "RetryLimit")
	if nil != err {
		globals.retryLimit = 0
	}

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	globals.accountMapMutex.Lock()
	if 0 != len(globals.accountMap) {
		globals.accountMapMutex.Unlock()
		err = fmt.Errorf("fslock.Down() called with %v goroutine(s) still inside the locking layer", len(globals.accountMap))
		return
	}
	globals.accountMap = nil
	globals.accountMapMutex.Unlock()

	err = nil
	return
}
