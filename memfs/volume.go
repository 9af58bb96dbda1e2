// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package memfs

import (
	"fmt"
	"strings"
	"time"

	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/fs"
	"github.com/openvfs/lockfs/logger"
)

func nonStringKeyError(key interface{}) error {
	return fmt.Errorf("memfs: entry table key %v is not a string", key)
}

func nonEntryValueError(value interface{}) error {
	return fmt.Errorf("memfs: entry table value %v is not an *entryStruct", value)
}

// fetchEntry looks the named entry up in the entry table.
func (vol *VolumeStruct) fetchEntry(name fs.EntryName) (entry *entryStruct, err error) {
	value, ok, err := vol.entryTable.GetByKey(string(name))
	if nil != err {
		logger.PanicfWithError(err, "memfs: entry table lookup of %q failed", name)
	}
	if !ok {
		err = blunder.NewError(blunder.NotFoundError, "entry %q not found in volume %s", name, vol.volumeName)
		return
	}
	entry = value.(*entryStruct)
	return
}

// fetchAttrs ensures the entry's attribute snapshot is materialized.
// Materializing mutates the entry table, so a caller holding only the
// read lock gets blunder.NeedsWriteLockError and must escalate.
func (vol *VolumeStruct) fetchAttrs(entry *entryStruct) (err error) {
	if entry.attrsCached {
		return
	}
	if (nil != vol.model) && !vol.model.IsWriteLockedByCurrentGoroutine() {
		err = blunder.NewError(blunder.NeedsWriteLockError,
			"attribute snapshot of %q in volume %s is cold", entry.name, vol.volumeName)
		return
	}
	if nil == entry.times {
		entry.times = make(map[fs.Access]time.Time)
	}
	entry.attrsCached = true
	return
}

// parentName returns the name of the directory containing name. The root
// is its own parent.
func parentName(name fs.EntryName) (parent fs.EntryName) {
	idx := strings.LastIndexByte(string(name), '/')
	if idx < 0 {
		parent = ""
		return
	}
	parent = name[:idx]
	return
}

// members returns the names of the direct members of directory dirName,
// in table (lexical) order.
func (vol *VolumeStruct) members(dirName fs.EntryName) (memberNames []fs.EntryName) {
	prefix := string(dirName)
	if "" != prefix {
		prefix += "/"
	}

	index, found, err := vol.entryTable.BisectRight(prefix)
	if nil != err {
		logger.PanicfWithError(err, "memfs: BisectRight(%q) failed", prefix)
	}
	if found {
		// prefix itself cannot be an entry name (it ends in "/" or is the
		// root's empty name, which BisectRight finds)
		index++
	}

	for {
		key, _, ok, err := vol.entryTable.GetByIndex(index)
		if nil != err {
			logger.PanicfWithError(err, "memfs: GetByIndex(%d) failed", index)
		}
		if !ok {
			return
		}
		keyString := key.(string)
		if !strings.HasPrefix(keyString, prefix) {
			return
		}
		relative := keyString[len(prefix):]
		if ("" != relative) && !strings.ContainsRune(relative, '/') {
			memberNames = append(memberNames, fs.EntryName(keyString))
		}
		index++
	}
}

func (vol *VolumeStruct) IsReadOnly() (readOnly bool, err error) {
	readOnly = vol.readOnly
	return
}

func (vol *VolumeStruct) GetEntry(name fs.EntryName) (entry *fs.Entry, err error) {
	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	err = vol.fetchAttrs(row)
	if nil != err {
		return
	}

	entry = &fs.Entry{
		Name: row.name,
		Type: row.entryType,
		Size: fs.UnknownSize,
	}
	if fs.FileType == row.entryType {
		entry.Size = uint64(len(row.content))
	}
	entry.Times = make(map[fs.Access]time.Time, len(row.times))
	for access, value := range row.times {
		entry.Times[access] = value
	}
	if fs.DirectoryType == row.entryType {
		entry.Members = vol.members(name)
	}
	return
}

func (vol *VolumeStruct) IsReadable(name fs.EntryName) (readable bool, err error) {
	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	err = vol.fetchAttrs(row)
	if nil != err {
		return
	}
	readable = true
	return
}

func (vol *VolumeStruct) IsWritable(name fs.EntryName) (writable bool, err error) {
	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	err = vol.fetchAttrs(row)
	if nil != err {
		return
	}
	writable = !vol.readOnly && !row.readOnly
	return
}

func (vol *VolumeStruct) IsExecutable(name fs.EntryName) (executable bool, err error) {
	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	err = vol.fetchAttrs(row)
	if nil != err {
		return
	}
	executable = fs.DirectoryType == row.entryType
	return
}

func (vol *VolumeStruct) SetReadOnly(name fs.EntryName) (err error) {
	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	row.readOnly = true
	vol.markDirty(row)
	return
}

func (vol *VolumeStruct) SetTime(name fs.EntryName, accessSet fs.AccessSet, value time.Time, options fs.OutputOptions) (ok bool, err error) {
	if vol.readOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "volume %s is read-only", vol.volumeName)
		return
	}
	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	if row.readOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "entry %q is read-only", name)
		return
	}
	if nil == row.times {
		row.times = make(map[fs.Access]time.Time)
	}
	for _, access := range []fs.Access{fs.ReadAccess, fs.WriteAccess, fs.ExecuteAccess, fs.CreateAccess} {
		if accessSet.Includes(access) {
			row.times[access] = value
		}
	}
	vol.markDirty(row)
	ok = true
	return
}

func (vol *VolumeStruct) Mknod(name fs.EntryName, entryType fs.Type, options fs.OutputOptions, template *fs.Entry) (err error) {
	if vol.readOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "volume %s is read-only", vol.volumeName)
		return
	}
	if "" == name {
		err = blunder.NewError(blunder.FileExistsError, "the root entry always exists")
		return
	}

	existing, _, getErr := vol.entryTable.GetByKey(string(name))
	if nil != getErr {
		logger.PanicfWithError(getErr, "memfs: entry table lookup of %q failed", name)
	}
	if nil != existing {
		if 0 != (options & fs.OutputOptionExclusive) {
			err = blunder.NewError(blunder.FileExistsError, "entry %q already exists", name)
			return
		}
		// non-exclusive create over an existing entry of the same type is
		// a no-op; over a different type it is an error
		if existing.(*entryStruct).entryType != entryType {
			err = blunder.NewError(blunder.FileExistsError,
				"entry %q already exists with a different type", name)
		}
		return
	}

	err = vol.requireParentDirectory(name, options)
	if nil != err {
		return
	}

	row := &entryStruct{
		name:        name,
		entryType:   entryType,
		times:       map[fs.Access]time.Time{fs.CreateAccess: time.Now()},
		attrsCached: true,
	}
	if nil != template {
		for access, value := range template.Times {
			row.times[access] = value
		}
	}
	ok, putErr := vol.entryTable.Put(string(name), row)
	if (nil != putErr) || !ok {
		logger.PanicfWithError(putErr, "memfs: entry table insert of %q failed", name)
	}
	vol.markDirty(row)
	return
}

// requireParentDirectory verifies name's parent exists and is a
// directory, creating the ancestor chain when options asks for it.
func (vol *VolumeStruct) requireParentDirectory(name fs.EntryName, options fs.OutputOptions) (err error) {
	parent := parentName(name)

	value, ok, getErr := vol.entryTable.GetByKey(string(parent))
	if nil != getErr {
		logger.PanicfWithError(getErr, "memfs: entry table lookup of %q failed", parent)
	}
	if ok {
		if fs.DirectoryType != value.(*entryStruct).entryType {
			err = blunder.NewError(blunder.NotDirError, "entry %q is not a directory", parent)
		}
		return
	}

	if 0 == (options & fs.OutputOptionCreateParents) {
		err = blunder.NewError(blunder.NotFoundError, "parent directory %q not found", parent)
		return
	}

	err = vol.Mknod(parent, fs.DirectoryType, options, nil)
	return
}

func (vol *VolumeStruct) Unlink(name fs.EntryName, options fs.OutputOptions) (err error) {
	if vol.readOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "volume %s is read-only", vol.volumeName)
		return
	}
	if "" == name {
		err = blunder.NewError(blunder.InvalidArgError, "the root entry cannot be unlinked")
		return
	}

	row, err := vol.fetchEntry(name)
	if nil != err {
		return
	}
	if row.readOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "entry %q is read-only", name)
		return
	}
	if (fs.DirectoryType == row.entryType) && (0 != len(vol.members(name))) {
		err = blunder.NewError(blunder.NotEmptyError, "directory %q is not empty", name)
		return
	}

	ok, deleteErr := vol.entryTable.DeleteByKey(string(name))
	if (nil != deleteErr) || !ok {
		logger.PanicfWithError(deleteErr, "memfs: entry table delete of %q failed", name)
	}
	if row.dirty {
		vol.dirtyCount--
	}
	return
}

// Sync commits pending state. For an in-memory volume the table IS the
// store, so commit just clears the dirty flags; the interesting cases are
// the armed fault and the cache maintenance options.
func (vol *VolumeStruct) Sync(options fs.SyncOptions) (err error) {
	if "" != vol.syncFault {
		message := vol.syncFault
		vol.syncFault = ""
		err = blunder.NewError(blunder.SyncFailedError, "sync of volume %s failed: %s", vol.volumeName, message)
		return
	}

	clearCache := 0 != (options & fs.SyncOptionClearCache)

	length, lenErr := vol.entryTable.Len()
	if nil != lenErr {
		logger.PanicfWithError(lenErr, "memfs: entry table Len() failed")
	}
	for index := 0; index < length; index++ {
		_, value, ok, getErr := vol.entryTable.GetByIndex(index)
		if (nil != getErr) || !ok {
			logger.PanicfWithError(getErr, "memfs: GetByIndex(%d) failed during sync", index)
		}
		row := value.(*entryStruct)
		row.dirty = false
		if clearCache && ("" != row.name) {
			row.attrsCached = false
		}
	}
	vol.dirtyCount = 0
	return
}

func (vol *VolumeStruct) markDirty(row *entryStruct) {
	if !row.dirty {
		row.dirty = true
		vol.dirtyCount++
	}
}

// DirtyCount returns the number of entries modified since the last Sync.
func (vol *VolumeStruct) DirtyCount() (dirtyCount uint64) {
	dirtyCount = vol.dirtyCount
	return
}
