// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/openvfs/lockfs/utils"
)

// accountStruct tracks how many locks the owning goroutine currently holds
// across all fslock controllers, plus the random source used to pause
// before a retry. One account exists per goroutine that is inside the
// locking layer; it is created on entry at depth 0 and discarded again
// when the outermost locked call completes.
type accountStruct struct {
	depth uint64
	rng   *rand.Rand
}

// fetchAccount returns the calling goroutine's account, creating it if the
// goroutine has none yet.
func fetchAccount() (account *accountStruct) {
	gid := utils.GetGID()

	globals.accountMapMutex.Lock()
	account, ok := globals.accountMap[gid]
	if !ok {
		account = &accountStruct{
			depth: 0,
			rng:   rand.New(rand.NewSource(time.Now().UnixNano() + int64(gid))),
		}
		globals.accountMap[gid] = account
	}
	globals.accountMapMutex.Unlock()

	return
}

// releaseAccount discards the calling goroutine's account. The account
// must exist and must not track any held locks; anything else means the
// executor's bookkeeping is broken.
func releaseAccount() {
	gid := utils.GetGID()

	globals.accountMapMutex.Lock()
	account, ok := globals.accountMap[gid]
	if !ok {
		globals.accountMapMutex.Unlock()
		panic(fmt.Sprintf("releaseAccount(): goroutine %d has no lock account", gid))
	}
	if 0 != account.depth {
		globals.accountMapMutex.Unlock()
		panic(fmt.Sprintf("releaseAccount(): goroutine %d still holds %d lock(s)", gid, account.depth))
	}
	delete(globals.accountMap, gid)
	globals.accountMapMutex.Unlock()
}

// pause sleeps for a small random interval before the goroutine retries
// its outermost operation. The jitter is what breaks the livelock between
// goroutines that keep colliding on the same set of node locks.
func (account *accountStruct) pause() {
	maxDelay := int64(globals.lockRetryDelayMax)
	delay := time.Duration(1)*time.Millisecond + time.Duration(account.rng.Int63n(maxDelay))
	time.Sleep(delay)
}
