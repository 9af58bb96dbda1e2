// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package trackedlock provides sync.Mutex and sync.RWMutex work-alikes that
// track lock hold time.
//
// If lock tracking is enabled ("TrackedLock.LockHoldTimeLimit" non-zero)
// then, when a lock is unlocked after being held longer than the limit, a
// warning is logged with the stack traces of both the Lock() and the
// Unlock(). In addition, if "TrackedLock.LockCheckPeriod" is non-zero, a
// watcher goroutine periodically logs locks that are currently held too
// long, with the stack trace of the goroutine that acquired them.
//
// The RWMutexTrack type lets other RWMutex-like synchronization objects,
// like dlm's lock tracks, participate in the same tracking.
//
// trackedlock locks can be locked before this package is Up, but they will
// not be tracked until the first Lock() after initialization.
package trackedlock

import (
	"sync"
	"sync/atomic"

	"github.com/openvfs/lockfs/logger"
)

// Mutex wraps sync.Mutex to add tracking of lock hold time and the stack
// trace of the locker.
type Mutex struct {
	wrappedMutex sync.Mutex // the actual Mutex
	tracker      MutexTrack // tracking information for the Mutex
}

// RWMutex wraps sync.RWMutex to add tracking of lock hold time and the
// stack trace of the locker.
type RWMutex struct {
	wrappedRWMutex sync.RWMutex // the actual RWMutex
	rwTracker      RWMutexTrack // track holds in shared (reader) mode
}

//
// Tracked Mutex API
//
func (m *Mutex) Lock() {
	m.wrappedMutex.Lock()

	m.tracker.lockTrack(m, nil)
}

func (m *Mutex) Unlock() {
	m.tracker.unlockTrack(m)

	m.wrappedMutex.Unlock()
}

//
// Tracked RWMutex API
//
func (m *RWMutex) Lock() {
	m.wrappedRWMutex.Lock()

	m.rwTracker.lockTrack(m)
}

func (m *RWMutex) Unlock() {
	m.rwTracker.unlockTrack(m)

	m.wrappedRWMutex.Unlock()
}

func (m *RWMutex) RLock() {
	m.wrappedRWMutex.RLock()

	m.rwTracker.rLockTrack(m)
}

func (m *RWMutex) RUnlock() {
	m.rwTracker.rUnlockTrack(m)

	m.wrappedRWMutex.RUnlock()
}

//
// Direct access to trackedlock API for DLM locks
//
func (rwmt *RWMutexTrack) LockTrack(lck interface{}) {
	rwmt.lockTrack(lck)
}

func (rwmt *RWMutexTrack) UnlockTrack(lck interface{}) {
	rwmt.unlockTrack(lck)
}

func (rwmt *RWMutexTrack) RLockTrack(lck interface{}) {
	rwmt.rLockTrack(lck)
}

func (rwmt *RWMutexTrack) RUnlockTrack(lck interface{}) {
	rwmt.rUnlockTrack(lck)
}

// DLMUnlockTrack records the release of a DLM lock that the tracker saw
// acquired in either shared or exclusive mode.
func (rwmt *RWMutexTrack) DLMUnlockTrack(lck interface{}) {
	// This uses rwmt.tracker.lockCnt without holding the mutex that protects
	// it. Because this goroutine holds the lock, it cannot change from -1
	// to 0 or >0 to 0 underneath us.
	lockCnt := atomic.LoadInt32(&rwmt.tracker.lockCnt)
	switch {
	case lockCnt == -1:
		rwmt.unlockTrack(lck)
	case lockCnt > 0:
		rwmt.rUnlockTrack(lck)
	default:
		logger.PanicfWithError(nil, "tracker for RWMutexTrack has illegal lockCnt %d for %T at %p", lockCnt, lck, lck)
	}
}
