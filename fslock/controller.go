// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"time"

	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/fs"
	"github.com/openvfs/lockfs/logger"
)

// writeLocked runs op under the node's write lock. Calling it while the
// goroutine holds this node's lock shared would be an in-place upgrade,
// which deadlocks against any parked waiter, so that is a hard bug and
// panics rather than returning an error.
func (c *ControllerStruct) writeLocked(op Operation) (result interface{}, err error) {
	if c.model.IsReadLockedByCurrentGoroutine() {
		logger.Panicf("fslock: illegal write-locked operation while holding the node's read lock; " +
			"acquiring the write lock first would deadlock")
	}
	result, err = locked(op, writeHandle{model: c.model})
	return
}

// readLocked runs op under the node's read lock.
func (c *ControllerStruct) readLocked(op Operation) (result interface{}, err error) {
	result, err = locked(op, readHandle{model: c.model})
	return
}

// readOrWriteLocked runs op under the read lock first; when op answers
// with blunder.NeedsWriteLockError the query needs to mutate state (a
// cold cache, typically) and is re-run once under the write lock.
func (c *ControllerStruct) readOrWriteLocked(op Operation) (result interface{}, err error) {
	result, err = c.readLocked(op)
	if (nil != err) && blunder.Is(err, blunder.NeedsWriteLockError) {
		result, err = c.writeLocked(op)
	}
	return
}

func (c *ControllerStruct) IsReadOnly() (readOnly bool, err error) {
	result, err := c.readOrWriteLocked(func() (interface{}, error) {
		return c.inner.IsReadOnly()
	})
	if nil == err {
		readOnly = result.(bool)
	}
	return
}

func (c *ControllerStruct) GetEntry(name fs.EntryName) (entry *fs.Entry, err error) {
	result, err := c.readOrWriteLocked(func() (interface{}, error) {
		return c.inner.GetEntry(name)
	})
	if nil == err {
		entry = result.(*fs.Entry)
	}
	return
}

func (c *ControllerStruct) IsReadable(name fs.EntryName) (readable bool, err error) {
	result, err := c.readOrWriteLocked(func() (interface{}, error) {
		return c.inner.IsReadable(name)
	})
	if nil == err {
		readable = result.(bool)
	}
	return
}

func (c *ControllerStruct) IsWritable(name fs.EntryName) (writable bool, err error) {
	result, err := c.readOrWriteLocked(func() (interface{}, error) {
		return c.inner.IsWritable(name)
	})
	if nil == err {
		writable = result.(bool)
	}
	return
}

func (c *ControllerStruct) IsExecutable(name fs.EntryName) (executable bool, err error) {
	result, err := c.readOrWriteLocked(func() (interface{}, error) {
		return c.inner.IsExecutable(name)
	})
	if nil == err {
		executable = result.(bool)
	}
	return
}

func (c *ControllerStruct) SetReadOnly(name fs.EntryName) (err error) {
	ctx := logger.TraceEnter("name:", name)
	_, err = c.writeLocked(func() (interface{}, error) {
		return nil, c.inner.SetReadOnly(name)
	})
	ctx.TraceExitErr("", err)
	return
}

func (c *ControllerStruct) SetTime(name fs.EntryName, accessSet fs.AccessSet, value time.Time, options fs.OutputOptions) (ok bool, err error) {
	result, err := c.writeLocked(func() (interface{}, error) {
		return c.inner.SetTime(name, accessSet, value, options)
	})
	if nil == err {
		ok = result.(bool)
	}
	return
}

func (c *ControllerStruct) Mknod(name fs.EntryName, entryType fs.Type, options fs.OutputOptions, template *fs.Entry) (err error) {
	ctx := logger.TraceEnter("name:", name)
	_, err = c.writeLocked(func() (interface{}, error) {
		return nil, c.inner.Mknod(name, entryType, options, template)
	})
	ctx.TraceExitErr("", err)
	return
}

func (c *ControllerStruct) Unlink(name fs.EntryName, options fs.OutputOptions) (err error) {
	ctx := logger.TraceEnter("name:", name)
	_, err = c.writeLocked(func() (interface{}, error) {
		return nil, c.inner.Unlink(name, options)
	})
	ctx.TraceExitErr("", err)
	return
}

// Sync commits the node under the write lock. The delegate may only fail
// with SyncFailedError; the lock retry signal additionally passes through
// so that a nested sync (an archive committing into its parent node) obeys
// the same unwind protocol as everything else. Any other failure from the
// delegate is a contract violation.
func (c *ControllerStruct) Sync(options fs.SyncOptions) (err error) {
	ctx := logger.TraceEnter("options:", options)
	defer func() { ctx.TraceExitErr("", err) }()
	_, err = c.writeLocked(func() (interface{}, error) {
		syncErr := c.inner.Sync(options)
		if nil == syncErr ||
			blunder.Is(syncErr, blunder.SyncFailedError) ||
			blunder.Is(syncErr, blunder.NeedsLockRetryError) {
			return nil, syncErr
		}
		logger.PanicfWithError(syncErr, "fslock: Sync() failed with an error that is not SyncFailedError")
		return nil, syncErr
	})
	return
}

func (c *ControllerStruct) GetInputSocket(name fs.EntryName, options fs.InputOptions) (inputSocket fs.InputSocket) {
	inputSocket = &inputSocketStruct{
		controller: c,
		inner:      c.inner.GetInputSocket(name, options),
	}
	return
}

func (c *ControllerStruct) GetOutputSocket(name fs.EntryName, options fs.OutputOptions, template *fs.Entry) (outputSocket fs.OutputSocket) {
	outputSocket = &outputSocketStruct{
		controller: c,
		inner:      c.inner.GetOutputSocket(name, options, template),
	}
	return
}
