// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package dlm

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/trackedlock"
	"github.com/openvfs/lockfs/utils"
)

// This struct is used by the local lock manager to track one named lock.
//
// A goroutine may hold the lock multiple times (recursion) and an exclusive
// owner may additionally hold it shared; per-goroutine hold counts are kept
// in sharedHolds and exclCount. The lock is free when both are zero
// everywhere.
type localLockTrack struct {
	trackedlock.Mutex
	lockId           string            // lock identity (must be unique)
	sharedHolds      map[uint64]uint64 // goroutine ID -> shared recursion count
	totalSharedHolds uint64            // sum of sharedHolds values
	exclOwner        uint64            // goroutine ID of exclusive owner; 0 if none
	exclCount        uint64            // exclusive recursion count of exclOwner
	waiters          uint64            // count of goroutines blocked on the lock
	waitReqQ         *list.List        // FIFO of *localLockRequest waiting for the lock
	rwMutexTrack     trackedlock.RWMutexTrack // track how long the lock is held
}

var localLockTrackPool = sync.Pool{
	New: func() interface{} {
		var track localLockTrack

		// every localLockTrack has a waitReqQ and a sharedHolds map
		track.waitReqQ = list.New()
		track.sharedHolds = make(map[uint64]uint64)

		return &track
	},
}

type localLockRequest struct {
	requestedState lockState
	gid            uint64
	*sync.Cond
	wakeUp bool
}

type lockState int

const (
	nilType lockState = iota
	shared
	exclusive
)

// isFree assumes the track mutex is held.
func (t *localLockTrack) isFree() bool {
	return (0 == t.exclCount) && (0 == t.totalSharedHolds)
}

// grantShared records a shared grant to gid.
//
// This function assumes the track mutex is held and that the grant is
// legal (no foreign exclusive owner).
func grantShared(track *localLockTrack, gid uint64) {
	if (0 != track.exclOwner) && (gid != track.exclOwner) {
		panic(fmt.Sprintf("granting shared hold of lock %v to goroutine %d while goroutine %d holds it exclusively",
			track.lockId, gid, track.exclOwner))
	}

	// holds nested inside the goroutine's own exclusive hold are covered by
	// the exclusive hold's tracking
	if (0 == track.sharedHolds[gid]) && (0 == track.exclOwner) {
		track.rwMutexTrack.RLockTrack(track)
	}

	track.sharedHolds[gid]++
	track.totalSharedHolds++
}

// grantExclusive records the first exclusive grant to gid.
//
// This function assumes the track mutex is held and that the lock is free.
func grantExclusive(track *localLockTrack, gid uint64) {
	if !track.isFree() || (0 != track.exclOwner) {
		panic(fmt.Sprintf("granting exclusive hold of lock %v to goroutine %d while lock is not free! "+
			"totalSharedHolds %d exclOwner %d exclCount %d",
			track.lockId, gid, track.totalSharedHolds, track.exclOwner, track.exclCount))
	}

	track.exclOwner = gid
	track.exclCount = 1
	track.rwMutexTrack.LockTrack(track)
}

// Process the waitReqQ and see if any locks can be granted.
//
// Requests are granted in FIFO order: a parked exclusive request blocks
// everything queued behind it until the lock goes free (writer priority).
//
// This function assumes that the track mutex is held.
func processLocalQ(track *localLockTrack) {
	for 0 < track.waitReqQ.Len() {
		elem := track.waitReqQ.Front()
		localQRequest, ok := elem.Value.(*localLockRequest)
		if !ok {
			panic("localLockTrack waitReqQ element is not a *localLockRequest!")
		}

		if exclusive == localQRequest.requestedState {
			if !track.isFree() {
				return
			}
			track.waitReqQ.Remove(elem)
			grantExclusive(track, localQRequest.gid)
			localQRequest.wakeUp = true
			localQRequest.Cond.Broadcast()
			return
		}

		// the request at the head wants shared access
		if 0 != track.exclCount {
			return
		}
		track.waitReqQ.Remove(elem)
		grantShared(track, localQRequest.gid)
		localQRequest.wakeUp = true
		localQRequest.Cond.Broadcast()
	}
}

func (l *RWLockStruct) commonLock(requestedState lockState, try bool) (err error) {
	gid := utils.GetGID()

	globals.Lock()
	track, ok := globals.localLockMap[l.LockID]
	if !ok {
		// Lock does not exist in map, get one
		track = localLockTrackPool.Get().(*localLockTrack)
		if 0 != track.waitReqQ.Len() {
			panic(fmt.Sprintf("localLockTrack object %p from pool does not have an empty waitReqQ", track))
		}
		if (0 != len(track.sharedHolds)) || !track.isFree() {
			panic(fmt.Sprintf("localLockTrack object %p from pool is not free", track))
		}
		track.lockId = l.LockID

		globals.localLockMap[l.LockID] = track
	}

	track.Mutex.Lock()
	defer track.Mutex.Unlock()

	globals.Unlock()

	// Reentrant fast paths: a goroutine that already owns the lock
	// exclusively may re-enter in either mode, and a goroutine holding it
	// shared may add another shared hold, without regard to the wait queue
	// (parking a reentrant request behind a waiter would deadlock it).
	if shared == requestedState {
		if (gid == track.exclOwner) || (0 != track.sharedHolds[gid]) {
			grantShared(track, gid)
			return nil
		}
	} else {
		if gid == track.exclOwner {
			track.exclCount++
			return nil
		}
		if 0 != track.sharedHolds[gid] {
			panic(fmt.Sprintf("goroutine %d attempting to upgrade shared hold of lock %v to exclusive; "+
				"upgrading would deadlock against any other waiter - release the shared hold first",
				gid, l.LockID))
		}
	}

	if try {
		// Non-blocking acquisition barges ahead of parked waiters; callers
		// use it only when already holding other locks, where fairness
		// matters less than never blocking.
		if exclusive == requestedState {
			if !track.isFree() {
				return blunder.NewError(blunder.NeedsLockRetryError, "lock %v is busy - try again", l.LockID)
			}
			grantExclusive(track, gid)
			return nil
		}
		if 0 != track.exclCount {
			return blunder.NewError(blunder.NeedsLockRetryError, "lock %v is busy - try again", l.LockID)
		}
		grantShared(track, gid)
		return nil
	}

	localRequest := localLockRequest{requestedState: requestedState, gid: gid, wakeUp: false}
	localRequest.Cond = sync.NewCond(&track.Mutex)
	track.waitReqQ.PushBack(&localRequest)

	track.waiters++

	// see if any locks can be granted
	processLocalQ(track)

	// wakeUp will already be true if processLocalQ() granted this request
	for !localRequest.wakeUp {
		localRequest.Cond.Wait()
	}

	// sanity check request and lock state
	if track.isFree() {
		panic(fmt.Sprintf("commonLock(): woke up with lock %v free! totalSharedHolds %d exclOwner %d exclCount %d",
			track.lockId, track.totalSharedHolds, track.exclOwner, track.exclCount))
	}

	// We decrement waiters here instead of in processLocalQ() so that other
	// goroutines do not assume there are no waiters between the time the
	// Cond is signaled and this goroutine wakes up.
	track.waiters--

	return nil
}

// unlock releases one hold in the given mode and grants the lock to any
// waiters that can now have it.
func (l *RWLockStruct) unlock(heldState lockState) (err error) {
	gid := utils.GetGID()

	globals.Lock()
	track, ok := globals.localLockMap[l.LockID]
	if !ok {
		panic(fmt.Sprintf("trying to unlock lock %v that is not in localLockMap!", l.LockID))
	}

	track.Mutex.Lock()

	// While holding the mutex on localLockMap, remove the lock from the map
	// if this release makes it completely free and nobody is waiting.
	var deleted = false
	if 0 == track.waiters {
		if exclusive == heldState {
			if (1 == track.exclCount) && (0 == track.totalSharedHolds) {
				deleted = true
			}
		} else {
			if (1 == track.totalSharedHolds) && (0 == track.exclCount) {
				deleted = true
			}
		}
		if deleted {
			delete(globals.localLockMap, l.LockID)
		}
	}

	globals.Unlock()

	if exclusive == heldState {
		if (gid != track.exclOwner) || (0 == track.exclCount) {
			panic(fmt.Sprintf("goroutine %d releasing exclusive hold of lock %v it does not own! "+
				"exclOwner %d exclCount %d", gid, track.lockId, track.exclOwner, track.exclCount))
		}
		track.exclCount--
		if 0 == track.exclCount {
			if 0 != track.totalSharedHolds {
				panic(fmt.Sprintf("goroutine %d releasing last exclusive hold of lock %v while shared holds remain; "+
					"nested holds must be released innermost first", gid, track.lockId))
			}
			track.exclOwner = 0
			track.rwMutexTrack.UnlockTrack(track)
		}
	} else {
		if 0 == track.sharedHolds[gid] {
			panic(fmt.Sprintf("goroutine %d releasing shared hold of lock %v it does not hold!", gid, track.lockId))
		}
		track.sharedHolds[gid]--
		track.totalSharedHolds--
		if 0 == track.sharedHolds[gid] {
			delete(track.sharedHolds, gid)
			if 0 == track.exclOwner {
				track.rwMutexTrack.RUnlockTrack(track)
			}
		}
	}

	// see if any locks can be granted
	processLocalQ(track)

	track.Mutex.Unlock()

	if deleted {
		if (0 != track.waitReqQ.Len()) || (0 != track.waiters) || !track.isFree() {
			panic(fmt.Sprintf("localLockTrack object %p for lock %v being returned to pool is not free",
				track, track.lockId))
		}
		track.lockId = ""
		localLockTrackPool.Put(track)
	}

	return nil
}

func isLockHeld(lockID string, lockHeldType LockHeldType) (held bool) {
	gid := utils.GetGID()

	globals.Lock()
	// NOTE: Not doing a defer globals.Unlock() here since grabbing another
	// lock below.

	track, ok := globals.localLockMap[lockID]
	if !ok {
		// lock does not exist in map
		globals.Unlock()
		return false
	}

	track.Mutex.Lock()

	globals.Unlock()

	defer track.Mutex.Unlock()

	switch lockHeldType {
	case READLOCK:
		return 0 != track.sharedHolds[gid]
	case WRITELOCK:
		return gid == track.exclOwner
	case ANYLOCK:
		return (0 != track.sharedHolds[gid]) || (gid == track.exclOwner)
	}
	return false
}

// NOTE: This is a test-only interface used for unit tests.
func waitCountWaiters(lockID string, count uint64) {
	for {
		globals.Lock()
		track, ok := globals.localLockMap[lockID]
		if !ok {
			globals.Unlock()
			if 0 == count {
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}

		track.Mutex.Lock()
		globals.Unlock()

		waiters := track.waiters
		track.Mutex.Unlock()

		if waiters == count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// NOTE: This is a test-only interface used for unit tests.
func waitCountHolders(lockID string, count uint64) {
	for {
		globals.Lock()
		track, ok := globals.localLockMap[lockID]
		if !ok {
			globals.Unlock()
			if 0 == count {
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}

		track.Mutex.Lock()
		globals.Unlock()

		holders := track.totalSharedHolds + track.exclCount
		track.Mutex.Unlock()

		if holders == count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
