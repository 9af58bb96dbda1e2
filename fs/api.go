// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package fs defines the boundary contract between the layers of a virtual
// filesystem controller chain: the entry metadata model, the per-node
// Controller operation surface, and the socket/stream abstractions used
// for content I/O.
//
// This package contains no implementation. Controller implementations
// (archive drivers, caching layers, the in-memory memfs) and decorators
// (the fslock concurrency layer) all code against these types.
package fs

import (
	"io"
	"time"
)

// EntryName is the name of a filesystem entry relative to its node's root.
// The empty name addresses the root entry itself.
type EntryName string

// Type classifies a filesystem entry.
type Type uint8

const (
	FileType Type = iota + 1
	DirectoryType
	SymlinkType
	SpecialType
)

// Access identifies one of an entry's access time axes.
type Access uint8

const (
	ReadAccess Access = iota + 1
	WriteAccess
	ExecuteAccess
	CreateAccess
)

// AccessSet is a bit field of Access values.
type AccessSet uint32

const (
	ReadAccessSet    AccessSet = 1 << ReadAccess
	WriteAccessSet   AccessSet = 1 << WriteAccess
	ExecuteAccessSet AccessSet = 1 << ExecuteAccess
	CreateAccessSet  AccessSet = 1 << CreateAccess
)

// Includes returns whether the set contains the given access.
func (set AccessSet) Includes(access Access) bool {
	return 0 != (set & (1 << access))
}

// UnknownSize is reported for entries whose size is not meaningful
// (directories) or not yet known.
const UnknownSize uint64 = ^uint64(0)

// Entry is a snapshot of one entry's metadata. Implementations return
// freshly allocated Entry values; callers own what they receive.
type Entry struct {
	Name    EntryName
	Type    Type
	Size    uint64                // UnknownSize if not meaningful
	Times   map[Access]time.Time  // zero map entries mean "unknown"
	Members []EntryName           // directory members; nil for non-directories
}

// InputOptions is a bit field of options for input socket construction.
type InputOptions uint32

const (
	InputOptionCache InputOptions = 1 << iota
)

// OutputOptions is a bit field of options for mutating operations and
// output socket construction.
type OutputOptions uint32

const (
	OutputOptionCreateParents OutputOptions = 1 << iota
	OutputOptionExclusive
	OutputOptionAppend
	OutputOptionCache
)

// SyncOptions is a bit field of options for the Sync operation.
type SyncOptions uint32

const (
	SyncOptionWaitCloseInput SyncOptions = 1 << iota
	SyncOptionWaitCloseOutput
	SyncOptionForceCloseInput
	SyncOptionForceCloseOutput
	SyncOptionClearCache
	SyncOptionAbortChanges
)

// ReadStream is a sequential reader for an entry's content.
type ReadStream interface {
	io.ReadCloser
}

// WriteStream is a sequential writer for an entry's content.
type WriteStream interface {
	io.WriteCloser
}

// RandomReader provides random access to an entry's content.
type RandomReader interface {
	io.ReaderAt
	io.Closer

	// Length returns the current content length in bytes.
	Length() (length uint64, err error)
}

// InputSocket addresses an entry for reading. Target resolution and stream
// opening are separate operations so that decorating layers can serialize
// each independently.
type InputSocket interface {
	// Target resolves the socket's local target entry.
	Target() (entry *Entry, err error)

	OpenReadStream() (readStream ReadStream, err error)
	OpenRandomReader() (randomReader RandomReader, err error)
}

// OutputSocket addresses an entry for writing.
type OutputSocket interface {
	Target() (entry *Entry, err error)

	OpenWriteStream() (writeStream WriteStream, err error)
}

// Controller is the operation surface of one filesystem node in the
// controller chain. A Controller implementation is NOT required to be safe
// for concurrent use by multiple goroutines; serialization is the job of a
// decorating locking layer.
//
// Error contract for implementations sitting below a locking layer:
//
//   - Any of the metadata query operations (IsReadOnly, GetEntry,
//     IsReadable, IsWritable, IsExecutable) may fail with a
//     blunder.NeedsWriteLockError-tagged error to indicate that the query
//     cannot be satisfied under a shared read lock (e.g. it must mutate
//     cached state); the locking layer will re-run it under the write lock.
//
//   - Any operation may fail with a blunder.NeedsLockRetryError-tagged
//     error to force the locking layer to unwind, release all locks held
//     by the calling goroutine, pause, and start over.
//
//   - Sync may only fail with a blunder.SyncFailedError-tagged error.
//
//   - On ANY failure the implementation must leave its state consistent so
//     that the operation can be retried; retried operations must be
//     idempotent with respect to partial progress.
type Controller interface {
	// IsReadOnly returns whether the whole node is read-only.
	IsReadOnly() (readOnly bool, err error)

	// GetEntry returns a metadata snapshot for the named entry, or a
	// blunder.NotFoundError-tagged error.
	GetEntry(name EntryName) (entry *Entry, err error)

	IsReadable(name EntryName) (readable bool, err error)
	IsWritable(name EntryName) (writable bool, err error)
	IsExecutable(name EntryName) (executable bool, err error)

	// SetReadOnly marks the named entry read-only.
	SetReadOnly(name EntryName) (err error)

	// SetTime sets the named entry's times for every access in accessSet
	// to value. The returned ok reports whether all requested times were
	// set.
	SetTime(name EntryName, accessSet AccessSet, value time.Time, options OutputOptions) (ok bool, err error)

	// Mknod creates the named entry of the given type. A nil template is
	// allowed; when non-nil, metadata (sizes, times) is copied from it.
	Mknod(name EntryName, entryType Type, options OutputOptions, template *Entry) (err error)

	// Unlink removes the named entry.
	Unlink(name EntryName, options OutputOptions) (err error)

	// Sync commits any pending state to the underlying store.
	Sync(options SyncOptions) (err error)

	// GetInputSocket and GetOutputSocket only construct sockets; they
	// perform no I/O and cannot fail. All I/O happens via the returned
	// socket's operations.
	GetInputSocket(name EntryName, options InputOptions) (inputSocket InputSocket)
	GetOutputSocket(name EntryName, options OutputOptions, template *Entry) (outputSocket OutputSocket)
}
