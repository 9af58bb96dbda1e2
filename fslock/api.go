// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package fslock provides read/write locking for multi-goroutine access to
// one node of a virtual filesystem controller chain.
//
// NewController() decorates an fs.Controller so that every operation runs
// under the node's shared reentrant read/write lock:
//
//   - metadata queries run under the read lock and are transparently
//     re-run under the write lock when the delegate answers with
//     blunder.NeedsWriteLockError;
//
//   - mutating operations, sync, content socket target resolution, stream
//     opening, and stream closing each run under the write lock;
//
//   - a stream's close takes a fresh write-locked call of its own - no
//     lock is held while a stream is merely open.
//
// Deadlock avoidance is the whole point of the layer. A filesystem
// operation may recursively re-enter the controller chain (an archive
// driver reading its own backing store, say) while locks are already held
// on the goroutine's stack. Such nested calls never block on lock
// acquisition: they try-lock, and on contention fail immediately with
// blunder.NeedsLockRetryError. That signal unwinds every intermediate
// frame until it reaches the goroutine's outermost locked call, which by
// then holds no locks at all, pauses for a small random interval, and
// starts over. A would-be deadlock between goroutines acquiring the locks
// of different nodes in opposite order thus becomes a retry instead.
//
// The retry requires some minimal cooperation from the decorated
// controller: whenever an operation fails, it MUST leave its resources in
// a consistent state so that it can get retried. Mind that this is a
// standard requirement for any fs.Controller.
package fslock

import (
	"github.com/openvfs/lockfs/fs"
	"github.com/openvfs/lockfs/utils"
)

// ControllerStruct is the locking decorator. Create instances with
// NewController().
type ControllerStruct struct {
	model *Model
	inner fs.Controller
}

// NewController returns a controller decorating inner with the lock
// discipline of model. The same model may also be handed to inner layers
// that need the is-write-locked query to decide whether to request lock
// escalation.
func NewController(inner fs.Controller, model *Model) (controller *ControllerStruct) {
	controller = &ControllerStruct{
		model: model,
		inner: inner,
	}
	return
}

// LockCount returns the number of locks currently held by the calling
// goroutine across all fslock controllers. It exists for diagnostics and
// tests; 0 means the goroutine is outside the locking layer entirely.
func LockCount() (depth uint64) {
	gid := utils.GetGID()

	globals.accountMapMutex.Lock()
	account, ok := globals.accountMap[gid]
	globals.accountMapMutex.Unlock()

	if ok {
		depth = account.depth
	}
	return
}
