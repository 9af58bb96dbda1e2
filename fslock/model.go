// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"github.com/openvfs/lockfs/dlm"
)

// Model is the read/write lock of one filesystem node. Every controller
// decorating the same node shares one Model; inner layers hold a reference
// too so they can ask whether the current goroutine already has write
// access before deciding to demand escalation.
type Model struct {
	lock *dlm.RWLockStruct
}

// NewModel returns the lock model for the node named by nodeID. The ID
// must be unique per node within the process (a mount point path or a
// volume:inode pair, say); models created with the same nodeID contend
// for the same underlying lock.
func NewModel(nodeID string) (model *Model) {
	model = &Model{
		lock: &dlm.RWLockStruct{LockID: "fslock:" + nodeID},
	}
	return
}

// IsReadLockedByCurrentGoroutine returns whether the calling goroutine
// holds this node's lock shared.
func (model *Model) IsReadLockedByCurrentGoroutine() (held bool) {
	held = model.lock.IsReadHeld()
	return
}

// IsWriteLockedByCurrentGoroutine returns whether the calling goroutine
// holds this node's lock exclusively.
func (model *Model) IsWriteLockedByCurrentGoroutine() (held bool) {
	held = model.lock.IsWriteHeld()
	return
}

// lockHandle abstracts the mode (shared or exclusive) a locked operation
// runs under so that the executor in locked.go need not care.
type lockHandle interface {
	lock() (err error)
	tryLock() (err error)
	unlock() (err error)
}

type readHandle struct {
	model *Model
}

func (h readHandle) lock() (err error) {
	err = h.model.lock.ReadLock()
	return
}

func (h readHandle) tryLock() (err error) {
	err = h.model.lock.TryReadLock()
	return
}

func (h readHandle) unlock() (err error) {
	err = h.model.lock.ReadUnlock()
	return
}

type writeHandle struct {
	model *Model
}

func (h writeHandle) lock() (err error) {
	err = h.model.lock.WriteLock()
	return
}

func (h writeHandle) tryLock() (err error) {
	err = h.model.lock.TryWriteLock()
	return
}

func (h writeHandle) unlock() (err error) {
	err = h.model.lock.WriteUnlock()
	return
}
