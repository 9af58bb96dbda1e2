// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/logger"
)

// Operation is a unit of work to run while holding a node lock. The
// result is passed through locked() untouched; callers type-assert it
// back to whatever their operation returns.
type Operation func() (result interface{}, err error)

// locked runs op while holding the lock behind handle, applying the
// retry protocol that keeps nested calls deadlock free.
//
// If the calling goroutine already holds locks of this layer (depth > 0),
// the lock is acquired without blocking; on contention the operation is
// not run and a blunder.NeedsLockRetryError unwinds the stack so that the
// outermost locked call can release everything and retry.
//
// If the goroutine holds no locks yet (depth == 0), the lock is acquired
// blocking and op runs; when op itself fails with the retry signal - some
// nested call lost a try-lock - all locks have already been released by
// the unwinding, so this frame just pauses for a random interval and runs
// op again. Every other outcome, success or failure, is returned as is.
func locked(op Operation, handle lockHandle) (result interface{}, err error) {
	account := fetchAccount()

	if 0 < account.depth {
		err = handle.tryLock()
		if nil != err {
			return
		}
		result, err = runHolding(op, handle, account)
		return
	}

	defer releaseAccount()

	retries := uint64(0)
	for {
		err = handle.lock()
		if nil != err {
			// blocking acquisition of a dlm lock cannot fail
			logger.PanicfWithError(err, "fslock: blocking lock acquisition failed")
		}

		result, err = runHolding(op, handle, account)
		if (nil == err) || blunder.IsNot(err, blunder.NeedsLockRetryError) {
			return
		}

		// a nested call lost a try-lock somewhere below; all locks are
		// released by now, so back off and start over
		retries++
		if (0 != globals.retryLimit) && (retries > globals.retryLimit) {
			logger.PanicfWithError(err, "fslock: operation still failing after %d retries", retries)
		}
		account.pause()
	}
}

// runHolding runs op with the lock held, keeping the account's depth
// consistent on every exit path, panics included.
func runHolding(op Operation, handle lockHandle, account *accountStruct) (result interface{}, err error) {
	account.depth++
	defer func() {
		account.depth--
		unlockErr := handle.unlock()
		if nil != unlockErr {
			logger.PanicfWithError(unlockErr, "fslock: lock release failed")
		}
	}()

	result, err = op()
	return
}
