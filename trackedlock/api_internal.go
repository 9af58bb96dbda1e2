// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package trackedlock

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openvfs/lockfs/logger"
	"github.com/openvfs/lockfs/utils"
)

type globalsStruct struct {
	mapMutex          sync.Mutex                    // protects mutexMap and rwMutexMap
	mutexMap          map[*MutexTrack]interface{}   // the Mutex-like locks being watched
	rwMutexMap        map[*RWMutexTrack]interface{} // the RWMutex-like locks being watched
	lockHoldTimeLimit time.Duration                 // locks held longer than this get logged
	lockCheckPeriod   time.Duration                 // check locks once each period
	stopChan          chan struct{}                 // tell the watcher to go home
	doneChan          chan struct{}                 // watcher shutdown complete
}

var globals globalsStruct

// stack traces are captured into fixed-size buffers drawn from a pool
const stackTraceBufSize = 4040

var stackTraceBufPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, stackTraceBufSize)
	},
}

func captureStackTrace() (stackTrace []byte) {
	stackTrace = stackTraceBufPool.Get().([]byte)[:stackTraceBufSize]
	cnt := runtime.Stack(stackTrace, false)
	stackTrace = stackTrace[0:cnt]
	return
}

// MutexTrack tracks a Mutex or an RWMutex held in exclusive mode (lockCnt
// is also used to track the number of shared lockers).
type MutexTrack struct {
	isWatched  bool      // true if lock is on the list of checked mutexes
	lockCnt    int32     // 0 if unlocked, -1 locked exclusive, > 0 locked shared
	lockTime   time.Time // time last lock operation completed
	lockerGoId uint64    // goroutine ID of the last locker
	lockStack  []byte    // stack trace when object was last locked
}

// RWMutexTrack tracks an RWMutex.
type RWMutexTrack struct {
	tracker         MutexTrack           // tracking info when the lock is held exclusive
	sharedStateLock sync.Mutex           // protects the following fields (shared mode state)
	rLockTime       map[uint64]time.Time // GoId -> lock acquired time
	rLockStack      map[uint64][]byte    // GoId -> locker stack trace
}

// Locking a Mutex or an RWMutex in exclusive (writer) mode. If this is a
// Mutex-like lock then rwmt is nil, otherwise it points to the RWMutexTrack.
//
// Note that holding an RWMutex in exclusive mode insures that no goroutine
// holds it in shared mode.
func (mt *MutexTrack) lockTrack(wrappedLock interface{}, rwmt *RWMutexTrack) {
	if globals.lockHoldTimeLimit == 0 {
		mt.lockTime = time.Now()
		atomic.StoreInt32(&mt.lockCnt, -1)
		return
	}

	mt.lockStack = captureStackTrace()
	mt.lockerGoId = utils.StackTraceToGoId(mt.lockStack)
	mt.lockTime = time.Now()
	atomic.StoreInt32(&mt.lockCnt, -1)

	// add to the list of watched mutexes if anybody is watching
	if !mt.isWatched && globals.lockCheckPeriod != 0 {
		globals.mapMutex.Lock()
		if rwmt != nil {
			globals.rwMutexMap[rwmt] = wrappedLock
		} else {
			globals.mutexMap[mt] = wrappedLock
		}
		globals.mapMutex.Unlock()
		mt.isWatched = true
	}
}

// Unlocking a Mutex or unlocking an RWMutex held in exclusive (writer) mode
func (mt *MutexTrack) unlockTrack(wrappedLock interface{}) {
	if globals.lockHoldTimeLimit != 0 {
		now := time.Now()
		if now.Sub(mt.lockTime) >= globals.lockHoldTimeLimit {
			unlockStack := captureStackTrace()

			// mt.lockTime is recorded even when tracking is disabled, so
			// mt.lockStack may not have been captured
			lockStr := "locked before lock tracking was enabled\n"
			if mt.lockStack != nil {
				lockStr = string(mt.lockStack)
			}
			logger.Warnf("Unlock(): %T at %p locked for %f sec; stack at call to Lock():\n%s stack at Unlock():\n%s",
				wrappedLock, wrappedLock,
				float64(now.Sub(mt.lockTime))/float64(time.Second), lockStr, string(unlockStack))

			stackTraceBufPool.Put(unlockStack[:stackTraceBufSize])
		}
	}

	atomic.StoreInt32(&mt.lockCnt, 0)
	if mt.lockStack != nil {
		stackTraceBufPool.Put(mt.lockStack[:stackTraceBufSize])
		mt.lockStack = nil
	}
}

// Tracking an RWMutex locked exclusive is just like a regular Mutex
func (rwmt *RWMutexTrack) lockTrack(wrappedLock interface{}) {
	rwmt.tracker.lockTrack(wrappedLock, rwmt)
}

func (rwmt *RWMutexTrack) unlockTrack(wrappedLock interface{}) {
	rwmt.tracker.unlockTrack(wrappedLock)
}

// Tracking an RWMutex locked shared is more work
func (rwmt *RWMutexTrack) rLockTrack(wrappedLock interface{}) {
	if globals.lockHoldTimeLimit == 0 {
		rwmt.sharedStateLock.Lock()
		atomic.AddInt32(&rwmt.tracker.lockCnt, 1)
		rwmt.sharedStateLock.Unlock()

		rwmt.tracker.lockTime = time.Now()
		return
	}

	// get the stack trace and goId before taking the shared state lock to
	// cut down on lock contention
	lockStack := captureStackTrace()
	goId := utils.StackTraceToGoId(lockStack)

	rwmt.sharedStateLock.Lock()
	if rwmt.rLockStack == nil {
		rwmt.rLockStack = make(map[uint64][]byte)
		rwmt.rLockTime = make(map[uint64]time.Time)
	}
	rwmt.tracker.lockTime = time.Now()
	rwmt.rLockTime[goId] = rwmt.tracker.lockTime
	rwmt.rLockStack[goId] = lockStack
	atomic.AddInt32(&rwmt.tracker.lockCnt, 1)

	if !rwmt.tracker.isWatched && globals.lockCheckPeriod != 0 {
		globals.mapMutex.Lock()
		globals.rwMutexMap[rwmt] = wrappedLock
		globals.mapMutex.Unlock()
		rwmt.tracker.isWatched = true
	}
	rwmt.sharedStateLock.Unlock()
}

func (rwmt *RWMutexTrack) rUnlockTrack(wrappedLock interface{}) {
	if globals.lockHoldTimeLimit == 0 {
		rwmt.sharedStateLock.Lock()

		// discard shared-hold info left over from an earlier time when
		// tracking was enabled
		if rwmt.rLockStack != nil {
			for goId, lockStack := range rwmt.rLockStack {
				stackTraceBufPool.Put(lockStack[:stackTraceBufSize])
				delete(rwmt.rLockStack, goId)
				delete(rwmt.rLockTime, goId)
			}
			rwmt.rLockStack = nil
			rwmt.rLockTime = nil
		}
		atomic.AddInt32(&rwmt.tracker.lockCnt, -1)
		rwmt.sharedStateLock.Unlock()
		return
	}

	// If the goroutine doing the RUnlock() is not the one that did the
	// RLock() we cannot match the two operations up; in that case just skip
	// the hold-time check for this unlock (the RLock() presumably happened
	// before tracking was enabled or the lock was passed between
	// goroutines). When the last shared hold is released, clear out any
	// stale entries so they do not trigger false watcher warnings.
	goId := utils.GetGID()

	now := time.Now()
	rwmt.sharedStateLock.Lock()
	rLockTime, ok := rwmt.rLockTime[goId]
	if ok && now.Sub(rLockTime) >= globals.lockHoldTimeLimit {
		unlockStack := captureStackTrace()
		logger.Warnf(
			"RUnlock(): %T at %p locked for %f sec; stack at call to RLock():\n%s stack at RUnlock():\n%s",
			wrappedLock, wrappedLock, float64(now.Sub(rLockTime))/float64(time.Second),
			string(rwmt.rLockStack[goId]), string(unlockStack))
		stackTraceBufPool.Put(unlockStack[:stackTraceBufSize])
	}

	if atomic.LoadInt32(&rwmt.tracker.lockCnt) == 1 {
		for staleGoId, lockStack := range rwmt.rLockStack {
			stackTraceBufPool.Put(lockStack[:stackTraceBufSize])
			delete(rwmt.rLockStack, staleGoId)
			delete(rwmt.rLockTime, staleGoId)
		}
	} else if ok {
		stackTraceBufPool.Put(rwmt.rLockStack[goId][:stackTraceBufSize])
		delete(rwmt.rLockStack, goId)
		delete(rwmt.rLockTime, goId)
	}
	atomic.AddInt32(&rwmt.tracker.lockCnt, -1)
	rwmt.sharedStateLock.Unlock()
}

// lockWatcher periodically checks every watched lock and logs any held
// longer than the limit.
func lockWatcher() {
	ticker := time.NewTicker(globals.lockCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-globals.stopChan:
			close(globals.doneChan)
			return
		case <-ticker.C:
			checkWatchedLocks()
		}
	}
}

func checkWatchedLocks() {
	now := time.Now()

	globals.mapMutex.Lock()
	defer globals.mapMutex.Unlock()

	for mt, wrappedLock := range globals.mutexMap {
		if (atomic.LoadInt32(&mt.lockCnt) == -1) && (now.Sub(mt.lockTime) >= globals.lockHoldTimeLimit) {
			logger.Warnf("lockWatcher(): %T at %p locked exclusive for %f sec by goroutine %d; stack at Lock():\n%s",
				wrappedLock, wrappedLock, float64(now.Sub(mt.lockTime))/float64(time.Second),
				mt.lockerGoId, string(mt.lockStack))
		}
	}

	for rwmt, wrappedLock := range globals.rwMutexMap {
		lockCnt := atomic.LoadInt32(&rwmt.tracker.lockCnt)
		switch {
		case lockCnt == -1:
			if now.Sub(rwmt.tracker.lockTime) >= globals.lockHoldTimeLimit {
				logger.Warnf("lockWatcher(): %T at %p locked exclusive for %f sec by goroutine %d; stack at Lock():\n%s",
					wrappedLock, wrappedLock, float64(now.Sub(rwmt.tracker.lockTime))/float64(time.Second),
					rwmt.tracker.lockerGoId, string(rwmt.tracker.lockStack))
			}
		case lockCnt > 0:
			rwmt.sharedStateLock.Lock()
			for goId, rLockTime := range rwmt.rLockTime {
				if now.Sub(rLockTime) >= globals.lockHoldTimeLimit {
					logger.Warnf("lockWatcher(): %T at %p locked shared for %f sec by goroutine %d; stack at RLock():\n%s",
						wrappedLock, wrappedLock, float64(now.Sub(rLockTime))/float64(time.Second),
						goId, string(rwmt.rLockStack[goId]))
				}
			}
			rwmt.sharedStateLock.Unlock()
		}
	}
}
