// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package memfs implements an in-memory fs.Controller, the innermost
// layer of a controller chain. It keeps a flat sorted table of entries
// keyed by their path name and serves metadata and content entirely from
// memory.
//
// memfs performs no locking of its own; it expects to sit below the
// fslock decorator. The one concession to that arrangement is the
// attribute snapshot handling: entry attributes are materialized lazily,
// and materializing them mutates the entry table, so a metadata query
// that finds a cold snapshot while the caller only holds the read lock
// answers with blunder.NeedsWriteLockError and lets the locking layer
// re-run it under the write lock. Sync(SyncOptionClearCache) drops all
// snapshots, which is also how tests drive the escalation path.
package memfs

import (
	"time"

	"github.com/NVIDIA/sortedmap"

	"github.com/openvfs/lockfs/fs"
	"github.com/openvfs/lockfs/fslock"
)

// entryStruct is one row of the entry table.
type entryStruct struct {
	name        fs.EntryName
	entryType   fs.Type
	content     []byte // FileType only
	times       map[fs.Access]time.Time
	readOnly    bool
	attrsCached bool
	dirty       bool
}

// VolumeStruct is an in-memory filesystem node. Create instances with
// NewVolume(). VolumeStruct is not safe for concurrent use; wrap it with
// fslock.NewController().
type VolumeStruct struct {
	volumeName string
	model      *fslock.Model // may be nil; disables escalation checks
	readOnly   bool
	entryTable sortedmap.LLRBTree // string(EntryName) -> *entryStruct
	syncFault  string             // pending Sync() fault; "" means none
	dirtyCount uint64
}

// NewVolume returns an empty volume containing just the root directory.
// The model must be the same lock model handed to the fslock controller
// wrapping this volume; pass nil for an undecorated volume, which then
// never requests lock escalation.
func NewVolume(volumeName string, model *fslock.Model) (vol *VolumeStruct) {
	vol = &VolumeStruct{
		volumeName: volumeName,
		model:      model,
	}
	vol.entryTable = sortedmap.NewLLRBTree(sortedmap.CompareString, vol)

	root := &entryStruct{
		name:        "",
		entryType:   fs.DirectoryType,
		times:       map[fs.Access]time.Time{fs.CreateAccess: time.Now()},
		attrsCached: true,
	}
	ok, err := vol.entryTable.Put("", root)
	if (nil != err) || !ok {
		panic("memfs: inserting the root entry failed")
	}

	return
}

// SetVolumeReadOnly marks the whole volume read-only.
func (vol *VolumeStruct) SetVolumeReadOnly() {
	vol.readOnly = true
}

// SetSyncFault arms a one-shot fault: the next Sync() call fails with a
// blunder.SyncFailedError carrying message. Used by administration and
// tests to exercise the sync failure path of upper layers.
func (vol *VolumeStruct) SetSyncFault(message string) {
	vol.syncFault = message
}

// DumpKey implements sortedmap.DumpCallbacks.
func (vol *VolumeStruct) DumpKey(key sortedmap.Key) (keyAsString string, err error) {
	keyAsString, ok := key.(string)
	if !ok {
		err = nonStringKeyError(key)
	}
	return
}

// DumpValue implements sortedmap.DumpCallbacks.
func (vol *VolumeStruct) DumpValue(value sortedmap.Value) (valueAsString string, err error) {
	entry, ok := value.(*entryStruct)
	if !ok {
		err = nonEntryValueError(value)
		return
	}
	valueAsString = string(entry.name)
	return
}
