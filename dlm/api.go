// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package dlm provides named reentrant read/write locks for goroutines in
// the same process.
//
// A lock is addressed by its LockID; all RWLockStruct values with the same
// LockID contend for the same underlying lock. Lock holders are identified
// by goroutine ID, which is what makes reentrancy work: a goroutine that
// holds a lock exclusively may re-acquire it (shared or exclusive) without
// blocking, matching the semantics of a reentrant read/write mutex. The
// reverse direction - acquiring exclusively while holding shared - is a
// documented deadlock hazard and panics.
//
// Example use of the lock:
/*
	myLock := &dlm.RWLockStruct{LockID: fmt.Sprintf("%s:%v", volume, inodeNum)}

	err := myLock.ReadLock()           // blocks until granted
	_ = myLock.ReadUnlock()

	err = myLock.TryWriteLock()        // never blocks
	switch {
	case err == nil:
		_ = myLock.WriteUnlock()
	case blunder.Is(err, blunder.NeedsLockRetryError):
		// give up the locks we hold, pause, start over
	default:
		// something is wrong
	}
*/
package dlm

// LockHeldType selects which hold mode IsLockHeld() should test for.
type LockHeldType uint32

const (
	ANYLOCK LockHeldType = iota + 1
	READLOCK
	WRITELOCK
)

// RWLockStruct is a handle on a named lock. The zero value with a LockID
// assigned is ready for use.
type RWLockStruct struct {
	LockID string
}

// GetLockID returns the lock ID from the lock struct.
func (l *RWLockStruct) GetLockID() string {
	return l.LockID
}

// IsLockHeld returns whether the named lock is held by the calling
// goroutine in the given mode.
func IsLockHeld(lockID string, lockHeldType LockHeldType) (held bool) {
	held = isLockHeld(lockID, lockHeldType)
	return
}

// IsReadHeld returns whether the calling goroutine holds the lock shared.
func (l *RWLockStruct) IsReadHeld() bool {
	return isLockHeld(l.LockID, READLOCK)
}

// IsWriteHeld returns whether the calling goroutine holds the lock
// exclusively.
func (l *RWLockStruct) IsWriteHeld() bool {
	return isLockHeld(l.LockID, WRITELOCK)
}

// WriteLock blocks until the lock can be held exclusively by the calling
// goroutine.
func (l *RWLockStruct) WriteLock() (err error) {
	err = l.commonLock(exclusive, false)
	return
}

// ReadLock blocks until the lock can be held shared by the calling
// goroutine.
func (l *RWLockStruct) ReadLock() (err error) {
	err = l.commonLock(shared, false)
	return
}

// TryWriteLock attempts to grab the lock exclusively without blocking.
// On contention it returns a blunder.NeedsLockRetryError-tagged error.
func (l *RWLockStruct) TryWriteLock() (err error) {
	err = l.commonLock(exclusive, true)
	return
}

// TryReadLock attempts to grab the lock shared without blocking.
// On contention it returns a blunder.NeedsLockRetryError-tagged error.
func (l *RWLockStruct) TryReadLock() (err error) {
	err = l.commonLock(shared, true)
	return
}

// ReadUnlock releases one shared hold of the calling goroutine and signals
// any waiters that may now be granted the lock.
func (l *RWLockStruct) ReadUnlock() (err error) {
	err = l.unlock(shared)
	return
}

// WriteUnlock releases one exclusive hold of the calling goroutine and
// signals any waiters that may now be granted the lock.
func (l *RWLockStruct) WriteUnlock() (err error) {
	err = l.unlock(exclusive)
	return
}
